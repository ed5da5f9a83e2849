// Package rawinput reads batches of raw records handed over by the fetch
// stage: a JSON array or newline-delimited JSON, from a file or stdin.
package rawinput

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/linnemanlabs/herald/internal/item"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// Result is a decoded batch. Skipped counts entries that were valid JSON but
// not objects; they never fail the batch.
type Result struct {
	Records []item.Raw
	Skipped int
}

// ReadFile reads a batch from path, or from stdin when path is "-".
func ReadFile(path string, stdin io.Reader) (*Result, error) {
	if path == Stdin {
		return Read(stdin)
	}
	f, err := os.Open(path) //nolint:gosec // G304: operator-supplied input path
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Read decodes a JSON array of records or a stream of JSON values. An empty
// input is an empty batch.
func Read(r io.Reader) (*Result, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return &Result{Records: []item.Raw{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	if first == '[' {
		var entries []json.RawMessage
		if err := json.NewDecoder(br).Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode input array: %w", err)
		}
		return collect(entries), nil
	}

	var entries []json.RawMessage
	dec := json.NewDecoder(br)
	for {
		var m json.RawMessage
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode input record %d: %w", len(entries)+1, err)
		}
		entries = append(entries, m)
	}
	return collect(entries), nil
}

func collect(entries []json.RawMessage) *Result {
	res := &Result{Records: make([]item.Raw, 0, len(entries))}
	for _, e := range entries {
		e = bytes.TrimSpace(e)
		if len(e) == 0 || e[0] != '{' {
			res.Skipped++
			continue
		}
		var rec item.Raw
		if err := json.Unmarshal(e, &rec); err != nil {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case 0xEF:
			// UTF-8 byte order mark
			if rest, err := br.Peek(2); err == nil && rest[0] == 0xBB && rest[1] == 0xBF {
				_, _ = br.Discard(2)
				continue
			}
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
