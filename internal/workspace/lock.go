package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"cadence/internal/faults"
)

const (
	lockSuffix       = ".lock"
	lockPollInterval = 50 * time.Millisecond
	lockTimeout      = 5 * time.Second
	lockStaleAfter   = 60 * time.Second
)

// acquireLock takes an advisory lock on absPath by creating {path}.lock as a
// directory. Directory creation is atomic on POSIX filesystems, which makes
// it the portable exclusive primitive. A lock directory older than 60s is
// treated as abandoned by a crashed process and reclaimed.
func acquireLock(absPath string) (release func(), err error) {
	lockDir := absPath + lockSuffix
	if err := os.MkdirAll(filepath.Dir(lockDir), 0o755); err != nil {
		return nil, faults.Wrap(faults.CodeWriteFailed, "create lock parent", err)
	}

	deadline := time.Now().Add(lockTimeout)
	for {
		err := os.Mkdir(lockDir, 0o755)
		if err == nil {
			return func() { _ = os.Remove(lockDir) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, faults.Wrap(faults.CodeWriteFailed, "create lock", err)
		}

		if info, statErr := os.Stat(lockDir); statErr == nil {
			if time.Since(info.ModTime()) > lockStaleAfter {
				// Stale lock from a dead holder; reclaim and retry.
				_ = os.Remove(lockDir)
				continue
			}
		}

		if time.Now().After(deadline) {
			return nil, faults.Newf(faults.CodeLockTimeout, "lock %s held past %s", lockDir, lockTimeout)
		}
		time.Sleep(lockPollInterval)
	}
}

// withLock runs fn while holding the advisory lock for absPath.
func withLock(absPath string, fn func() error) error {
	release, err := acquireLock(absPath)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
