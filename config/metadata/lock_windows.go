//go:build windows

package metadata

// withLock on Windows runs fn directly without file locking (syscall.Flock is unavailable).
func (s *Store) withLock(slug string, fn func() error) error {
	return fn()
}
