package runlock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "stow.lock")

	l, err := Acquire(path)
	require.NoError(t, err)
	assert.True(t, l.Held())
	assert.Equal(t, path, l.Path())
	assert.NoError(t, Require(l))

	pid, err := Holder(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, l.Release())
	assert.False(t, l.Held())
	assert.NoError(t, l.Release())
	assert.ErrorIs(t, Require(l), types.ErrNoLock)
}

func TestAcquireHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stow.lock")

	first, err := Acquire(path)
	require.NoError(t, err)
	defer first.Release()

	_, err = Acquire(path)
	assert.ErrorIs(t, err, ErrHeld)
	assert.Contains(t, err.Error(), "pid")

	require.NoError(t, first.Release())
	second, err := Acquire(path)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func TestRequireNil(t *testing.T) {
	assert.ErrorIs(t, Require(nil), types.ErrNoLock)
	assert.ErrorIs(t, Require(&Lock{}), types.ErrNoLock)
	assert.NoError(t, (*Lock)(nil).Release())
}
