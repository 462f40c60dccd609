package history

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

func report(op string) *types.Report {
	outcomes := []types.Outcome{
		{Source: "/in/a.jpg", Target: "/lib/Pictures/a.jpg", Status: types.StatusMoved, Size: 10},
		{Source: "/in/b.jpg", Target: "/in/Duplicates/b.jpg", Status: types.StatusDuplicate, Size: 5},
	}
	return &types.Report{
		Operation: op,
		Source:    "/in",
		Outcomes:  outcomes,
		Summary:   types.Summarize(outcomes),
	}
}

func clock(s *Store, t time.Time) {
	s.now = func() time.Time { return t }
}

func TestNewRejectsEmptyDir(t *testing.T) {
	_, err := New("")
	require.ErrorIs(t, err, types.ErrConfiguration)
}

func TestSaveAndGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	s, err := New(dir)
	require.NoError(t, err)

	e, err := s.Save(report("route"), true)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^route-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-[0-9a-f]{8}$`), e.ID)
	assert.True(t, e.DryRun)
	assert.FileExists(t, filepath.Join(dir, e.ID+".json"))

	got, err := s.Get(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "route", got.Operation)
	require.NotNil(t, got.Report)
	assert.Equal(t, 1, got.Report.Summary.Moved)
	assert.Equal(t, 1, got.Report.Summary.Duplicates)
	assert.Equal(t, "/in/Duplicates/b.jpg", got.Report.Outcomes[1].Target)
}

func TestGetByPrefix(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	a, err := s.Save(report("route"), false)
	require.NoError(t, err)
	_, err = s.Save(report("index"), false)
	require.NoError(t, err)

	got, err := s.Get(a.ID[:len(a.ID)-4])
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = s.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("")
	require.Error(t, err)
}

func TestGetAmbiguousPrefix(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	clock(s, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	_, err = s.Save(report("route"), false)
	require.NoError(t, err)
	_, err = s.Save(report("route"), false)
	require.NoError(t, err)

	_, err = s.Get("route-2026-01-02")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestListNewestFirst(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, op := range []string{"index", "route", "quarantine"} {
		clock(s, base.Add(time.Duration(i)*time.Hour))
		_, err := s.Save(report(op), false)
		require.NoError(t, err)
	}

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "quarantine", all[0].Operation)
	assert.Equal(t, "route", all[1].Operation)
	assert.Equal(t, "index", all[2].Operation)

	two, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestListSkipsJunk(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	_, err = s.Save(report("route"), false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	entries, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestListMissingDir(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)

	entries, err := s.List(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanup(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	clock(s, now.AddDate(0, 0, -45))
	_, err = s.Save(report("route"), false)
	require.NoError(t, err)
	clock(s, now.AddDate(0, 0, -5))
	keep, err := s.Save(report("index"), false)
	require.NoError(t, err)

	clock(s, now)
	removed, err := s.Cleanup(30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, keep.ID, entries[0].ID)

	removed, err = s.Cleanup(0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
