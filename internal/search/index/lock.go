package index

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockFile = "LOCK"

// acquireLock takes the cross-process index lock, shared for readers and
// exclusive for writers, polling until timeout. Readers release it once
// loaded; writers keep it until Close.
func acquireLock(dir string, shared bool, timeout time.Duration) (*flock.Flock, error) {
	lockPath := filepath.Join(dir, lockFile)
	l := flock.New(lockPath)
	deadline := time.Now().Add(timeout)
	for {
		var (
			locked bool
			err    error
		)
		if shared {
			locked, err = l.TryRLock()
		} else {
			locked, err = l.TryLock()
		}
		if err != nil {
			return nil, fmt.Errorf("cannot acquire index lock: %w", err)
		}
		if locked {
			return l, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w (lock: %s)", ErrLocked, lockPath)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// tryLockShared takes the shared index lock without waiting. ok is false
// when a writer holds the index.
func tryLockShared(dir string) (l *flock.Flock, ok bool, err error) {
	l = flock.New(filepath.Join(dir, lockFile))
	ok, err = l.TryRLock()
	if err != nil {
		return nil, false, fmt.Errorf("cannot acquire index lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return l, true, nil
}
