//go:build !windows

package metadata

import (
	"os"
	"syscall"
)

// withLock holds an exclusive lock on the slug's lock file while fn runs.
func (s *Store) withLock(slug string, fn func() error) error {
	f, err := os.OpenFile(s.lockPath(slug), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fn() // fallback: run without lock if we can't create lock file
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fn() // fallback: run without lock
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return fn()
}
