// Package history keeps a JSON record of every run so past routing and
// quarantine decisions can be reviewed later.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/stow/pkg/stow/fsutil"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// ErrNotFound is returned by Get when no entry has the requested ID.
var ErrNotFound = errors.New("history entry not found")

// Entry is one recorded run.
type Entry struct {
	ID        string        `json:"id" yaml:"id"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Operation string        `json:"operation" yaml:"operation"`
	DryRun    bool          `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Report    *types.Report `json:"report" yaml:"report"`
}

// Store reads and writes entries in a directory, one JSON file per run.
type Store struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// New returns a store rooted at dir. The directory is created on first Save.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, types.Wrap(types.ErrConfiguration, "history", "", errors.New("directory cannot be empty"))
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Save records rep and returns the stored entry.
func (s *Store) Save(rep *types.Report, dryRun bool) (*Entry, error) {
	if rep == nil {
		return nil, errors.New("history: nil report")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	entry := &Entry{
		ID:        newID(rep.Operation, now),
		Timestamp: now,
		Operation: rep.Operation,
		DryRun:    dryRun,
		Report:    rep,
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, types.Wrap(types.ErrIO, "history", s.dir, err)
	}
	path := filepath.Join(s.dir, entry.ID+".json")
	err := fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	})
	if err != nil {
		return nil, types.Wrap(types.ErrIO, "history", path, err)
	}
	return entry, nil
}

// List returns entries newest first. A limit of zero or less returns all.
// Unreadable files are skipped.
func (s *Store) List(limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry with the given ID. A unique ID prefix is accepted.
func (s *Store) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("history: entry ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, err := s.readFile(filepath.Join(s.dir, id+".json")); err == nil {
		return e, nil
	}

	entries, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var found *Entry
	for i := range entries {
		if !strings.HasPrefix(entries[i].ID, id) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("history: ID prefix %q is ambiguous", id)
		}
		found = &entries[i]
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// Cleanup removes entries older than retentionDays and returns how many were
// removed. A retention of zero keeps everything.
func (s *Store) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	entries, err := s.readAll()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.ID+".json")); err != nil && !os.IsNotExist(err) {
			return removed, types.Wrap(types.ErrIO, "history cleanup", e.ID, err)
		}
		removed++
	}
	return removed, nil
}

func (s *Store) readAll() ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, types.Wrap(types.ErrIO, "history", s.dir, err)
	}
	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		e, err := s.readFile(filepath.Join(s.dir, f.Name()))
		if err != nil {
			continue
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func (s *Store) readFile(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.ID == "" {
		return nil, errors.New("missing id")
	}
	return &e, nil
}

// newID builds IDs like "route-2026-10-16T10-30-00-1a2b3c4d".
func newID(op string, ts time.Time) string {
	if op == "" {
		op = "run"
	}
	return fmt.Sprintf("%s-%s-%s", op, ts.Format("2006-01-02T15-04-05"), uuid.NewString()[:8])
}
