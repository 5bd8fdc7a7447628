package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// DataDirLock is the cross-process exclusion over one data directory.
// In-process per-document locks do not help against a second dirc
// process pointed at the same store; the flock does.
type DataDirLock struct {
	path  string
	flock *flock.Flock
}

// NewDataDirLock prepares the lock file at <dir>/dirc.lock.
func NewDataDirLock(dir string) *DataDirLock {
	path := filepath.Join(dir, "dirc.lock")
	return &DataDirLock{path: path, flock: flock.New(path)}
}

// Acquire takes the exclusive lock without blocking. A lock held by
// another process is a retryable busy error.
func (l *DataDirLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return dircerrors.New(dircerrors.ErrCodeFilePermission,
			fmt.Sprintf("cannot create data directory for lock %s", l.path), err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return dircerrors.InternalError(
			fmt.Sprintf("failed to acquire data directory lock %s", l.path), err)
	}
	if !acquired {
		return dircerrors.New(dircerrors.ErrCodeDocumentBusy,
			fmt.Sprintf("data directory %s is locked by another process", filepath.Dir(l.path)), nil).
			WithSuggestion("stop the other dirc process or point this one at a different data directory")
	}
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *DataDirLock) Release() error {
	return l.flock.Unlock()
}

// Path returns the lock file location.
func (l *DataDirLock) Path() string { return l.path }
