package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/calsync/internal/utils"
)

var ErrDaemonLocked = errors.New("client: another calsync instance holds the state lock")

type stateLock struct {
	flock *flock.Flock
}

func newStateLock(path string) *stateLock {
	return &stateLock{flock: flock.New(path)}
}

func (l *stateLock) Lock() error {
	dir := filepath.Dir(l.flock.Path())
	if err := utils.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock state dir: %w", err)
	}
	if !locked {
		return ErrDaemonLocked
	}
	return nil
}

func (l *stateLock) Unlock() error {
	// not ours, leave the file alone
	if !l.flock.Locked() {
		return nil
	}

	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock state dir: %w", err)
	}
	return os.Remove(l.flock.Path())
}
