// Package seen holds the durable record of what has already been published:
// two bounded, oldest-first lists of item IDs and title fingerprints, and the
// Store interface the gate loads and saves them through.
package seen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// CurrentVersion is the state layout version written by this package.
const CurrentVersion = 1

var (
	// ErrNotInitialized means no state has ever been saved. Runs refuse to
	// start until an operator resets the store explicitly.
	ErrNotInitialized = errors.New("seen state not initialized")

	// ErrCorrupt means the stored state could not be read or decoded.
	ErrCorrupt = errors.New("seen state corrupt")

	// ErrLocked means another run holds the lease.
	ErrLocked = errors.New("seen state locked by another run")

	// ErrConflict means the stored revision moved since the state was loaded.
	ErrConflict = errors.New("seen state revision conflict")
)

// Title is one remembered title fingerprint.
type Title struct {
	Title       string    `json:"title"`
	Fingerprint string    `json:"fingerprint"`
	ID          string    `json:"id"`
	SeenAt      time.Time `json:"seen_at"`
}

// Limits bound the two lists. Once a list is full the oldest entries are
// evicted first.
type Limits struct {
	MaxIDs    int
	MaxTitles int
}

// State is the persisted seen state. It is loaded at the start of a run,
// mutated only by the gate after a confirmed publish, and saved at the end.
type State struct {
	Version   int       `json:"version"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	IDs       []string  `json:"seen_ids"`
	Titles    []Title   `json:"seen_titles"`

	index map[string]struct{}
}

// New returns an empty state at the current version.
func New() *State {
	return &State{Version: CurrentVersion, IDs: []string{}, Titles: []Title{}}
}

// HasID reports whether id has been published.
func (s *State) HasID(id string) bool {
	s.buildIndex()
	_, ok := s.index[id]
	return ok
}

// Record remembers a published item. A repeated ID is not appended twice but
// its title is still refreshed so the history check sees the newest wording.
func (s *State) Record(t Title, lim Limits) {
	s.buildIndex()
	if _, ok := s.index[t.ID]; !ok {
		s.IDs = append(s.IDs, t.ID)
		s.index[t.ID] = struct{}{}
	}
	if t.Fingerprint != "" {
		s.Titles = append(s.Titles, t)
	}
	s.evict(lim)
}

func (s *State) evict(lim Limits) {
	if lim.MaxIDs > 0 && len(s.IDs) > lim.MaxIDs {
		drop := len(s.IDs) - lim.MaxIDs
		for _, id := range s.IDs[:drop] {
			delete(s.index, id)
		}
		s.IDs = slices.Clone(s.IDs[drop:])
	}
	if lim.MaxTitles > 0 && len(s.Titles) > lim.MaxTitles {
		s.Titles = slices.Clone(s.Titles[len(s.Titles)-lim.MaxTitles:])
	}
}

// RecentTitles returns the titles recorded within window of now, oldest
// first. A zero window returns all of them.
func (s *State) RecentTitles(now time.Time, window time.Duration) []Title {
	if window <= 0 {
		return s.Titles
	}
	cutoff := now.Add(-window)
	for i, t := range s.Titles {
		if !t.SeenAt.Before(cutoff) {
			return s.Titles[i:]
		}
	}
	return nil
}

// Summary is a compact operator view of a State.
type Summary struct {
	Version   int       `json:"version"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	IDs       int       `json:"seen_ids"`
	Titles    int       `json:"seen_titles"`
	Recent    []Title   `json:"recent"`
}

// Summarize reports the list sizes and up to n of the newest titles, newest
// first.
func (s *State) Summarize(n int) Summary {
	sum := Summary{
		Version:   s.Version,
		Revision:  s.Revision,
		UpdatedAt: s.UpdatedAt,
		IDs:       len(s.IDs),
		Titles:    len(s.Titles),
		Recent:    []Title{},
	}
	for i := len(s.Titles) - 1; i >= 0 && len(sum.Recent) < n; i-- {
		sum.Recent = append(sum.Recent, s.Titles[i])
	}
	return sum
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	cp := &State{
		Version:   s.Version,
		Revision:  s.Revision,
		UpdatedAt: s.UpdatedAt,
		IDs:       slices.Clone(s.IDs),
		Titles:    slices.Clone(s.Titles),
	}
	if cp.IDs == nil {
		cp.IDs = []string{}
	}
	if cp.Titles == nil {
		cp.Titles = []Title{}
	}
	return cp
}

func (s *State) buildIndex() {
	if s.index != nil {
		return
	}
	s.index = make(map[string]struct{}, len(s.IDs))
	for _, id := range s.IDs {
		s.index[id] = struct{}{}
	}
}

// Validate checks a decoded state for structural problems.
func (s *State) Validate() error {
	if s.Version < 1 || s.Version > CurrentVersion {
		return fmt.Errorf("unsupported version %d", s.Version)
	}
	if s.Revision < 0 {
		return fmt.Errorf("negative revision %d", s.Revision)
	}
	for i, id := range s.IDs {
		if id == "" {
			return fmt.Errorf("seen_ids[%d] is empty", i)
		}
	}
	for i, t := range s.Titles {
		if t.Fingerprint == "" {
			return fmt.Errorf("seen_titles[%d] has no fingerprint", i)
		}
	}
	return nil
}

// Encode renders the state as indented JSON so operators can read it.
func Encode(s *State) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode seen state: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses and validates a stored state. Any failure wraps ErrCorrupt.
func Decode(data []byte) (*State, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrCorrupt)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var s State
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if s.IDs == nil {
		s.IDs = []string{}
	}
	if s.Titles == nil {
		s.Titles = []Title{}
	}
	return &s, nil
}

// Lease is an exclusive hold on a store for the duration of one run.
type Lease interface {
	Release() error
}

// Store persists State.
//
// Load returns ErrNotInitialized when nothing was ever saved and an error
// wrapping ErrCorrupt when the stored state is unusable; neither is ever
// papered over with an empty state. Save writes s only if the stored
// revision still equals s.Revision, then increments s.Revision. Reset
// replaces whatever is stored, readable or not, with an empty state. Lock
// fails fast with ErrLocked while another lease is held.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
	Reset(ctx context.Context) error
	Lock(ctx context.Context) (Lease, error)
}
