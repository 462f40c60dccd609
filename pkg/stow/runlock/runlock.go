// Package runlock provides the process-wide exclusive-access token that
// mutating stow runs hold while they touch the Inbox or a ledger.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.New("run lock held by another process")

// Lock is a held run lock. The zero value is not held.
type Lock struct {
	path string
	fl   *flock.Flock

	mu       sync.Mutex
	released bool
}

// Acquire takes the lock at path without blocking. The holder's PID is
// written into the lock file for diagnostics.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, types.Wrap(types.ErrIO, "create lock dir", path, err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, types.Wrap(types.ErrIO, "acquire lock", path, err)
	}
	if !ok {
		if pid, perr := Holder(path); perr == nil {
			return nil, fmt.Errorf("%w (pid %d)", ErrHeld, pid)
		}
		return nil, ErrHeld
	}

	if err := writePID(path); err != nil {
		_ = fl.Unlock()
		return nil, types.Wrap(types.ErrIO, "write lock pid", path, err)
	}
	return &Lock{path: path, fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Held reports whether l is a live token.
func (l *Lock) Held() bool {
	if l == nil || l.fl == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.released && l.fl.Locked()
}

// Release unlocks. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true
	if err := l.fl.Unlock(); err != nil {
		return types.Wrap(types.ErrIO, "release lock", l.path, err)
	}
	return nil
}

// Require returns ErrNoLock unless l is held.
func Require(l *Lock) error {
	if !l.Held() {
		return types.ErrNoLock
	}
	return nil
}

// Holder reads the PID recorded in the lock file.
func Holder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// writePID records the current PID in place. The file is truncated through
// a separate handle because flock's descriptor is opened read-only.
func writePID(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
