package storage

// FileLock is the exported handle returned by LockDatabase: an OS-level
// advisory lock guarding a database directory against a second process
// opening it concurrently.
type FileLock struct {
	inner *fileLock
}

// LockDatabase acquires an exclusive OS-level lock on root, so that a
// second process calling Open on the same directory fails fast instead of
// corrupting on-disk state.
func LockDatabase(root string) (*FileLock, error) {
	fl, err := lockFile(root)
	if err != nil {
		return nil, err
	}
	return &FileLock{inner: fl}, nil
}

// Unlock releases the OS-level lock.
func (f *FileLock) Unlock() error {
	if f == nil || f.inner == nil {
		return nil
	}
	return f.inner.unlock()
}
