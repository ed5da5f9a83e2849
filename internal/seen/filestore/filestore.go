// Package filestore keeps seen state in a single indented JSON file, written
// with an atomic replace and guarded by an flock(2) lease on a sibling
// ".lock" file.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/linnemanlabs/herald/internal/seen"
)

// Store persists seen.State at a file path.
type Store struct {
	path string

	// serializes read-check-write within this process; the flock lease
	// covers other processes
	mu sync.Mutex
}

// New returns a Store for path. Nothing is created until Reset or Lock.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file path.
func (s *Store) Path() string { return s.path }

// Load reads and decodes the state file.
func (s *Store) Load(_ context.Context) (*seen.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) read() (*seen.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", seen.ErrNotInitialized, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", seen.ErrCorrupt, s.path, err)
	}
	st, err := seen.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return st, nil
}

// Save replaces the file with st if the file's revision equals st.Revision.
func (s *Store) Save(_ context.Context, st *seen.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.read()
	if err != nil {
		return err
	}
	if cur.Revision != st.Revision {
		return fmt.Errorf("%w: file at revision %d, state loaded at %d", seen.ErrConflict, cur.Revision, st.Revision)
	}

	st.Revision++
	if err := s.write(st); err != nil {
		st.Revision--
		return err
	}
	return nil
}

// Reset overwrites the file with an empty state, whatever it held before.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := seen.New()
	if cur, err := s.read(); err == nil {
		next.Revision = cur.Revision + 1
	}
	return s.write(next)
}

func (s *Store) write(st *seen.State) error {
	data, err := seen.Encode(st)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o640); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	cleanup = false

	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open state dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync state dir: %w", err)
	}
	return nil
}

// Lock takes a non-blocking exclusive flock on path+".lock".
func (s *Store) Lock(_ context.Context) (seen.Lease, error) {
	lockPath := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", seen.ErrLocked, lockPath)
		}
		return nil, fmt.Errorf("flock %s: %w", lockPath, err)
	}
	return &lease{f: f}, nil
}

type lease struct {
	once sync.Once
	f    *os.File
	err  error
}

func (l *lease) Release() error {
	l.once.Do(func() {
		uerr := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
		cerr := l.f.Close()
		l.err = errors.Join(uerr, cerr)
	})
	return l.err
}
