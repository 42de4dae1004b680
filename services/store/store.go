package store

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"

	perrors "sjsage522/listingwatcher/pkg/errors"
)

// SeenStore is the set of listing identifiers already reported, backed by
// an append-only file with one identifier per line.
//
// A SeenStore is owned by a single poll loop and is not safe for concurrent
// use. The set only grows. DiffAndAdd updates memory before Persist appends
// to the file, so a crash between the two loses at most that cycle's lines.
type SeenStore struct {
	path string
	seen map[string]struct{}
}

// Load reads the backing file if it exists. A missing file yields an empty set.
func Load(path string) (*SeenStore, error) {
	s := &SeenStore{
		path: path,
		seen: make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, perrors.NewStore("failed to open "+path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		id := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if id == "" {
			continue
		}
		s.seen[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, perrors.NewStore("failed to read "+path, err)
	}

	return s, nil
}

// Path returns the backing file path
func (s *SeenStore) Path() string {
	return s.path
}

// Len returns the number of known identifiers
func (s *SeenStore) Len() int {
	return len(s.seen)
}

// Contains reports whether id was seen before
func (s *SeenStore) Contains(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// DiffAndAdd returns the candidates not seen before, in their original
// order, and marks every candidate as seen.
func (s *SeenStore) DiffAndAdd(candidates []string) []string {
	var fresh []string
	for _, id := range candidates {
		if _, ok := s.seen[id]; ok {
			continue
		}
		s.seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh
}

// Persist appends ids to the backing file in order. Existing lines are never
// rewritten.
func (s *SeenStore) Persist(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return perrors.NewStore("failed to open "+s.path+" for append", err)
	}

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('\n')
	}

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return perrors.NewStore("failed to append to "+s.path, err)
	}
	if err := f.Close(); err != nil {
		return perrors.NewStore("failed to close "+s.path, err)
	}
	return nil
}
