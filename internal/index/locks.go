package index

import (
	"sync"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// DocumentLocks serializes writers per document id. Acquire fails fast
// instead of queueing: a second ingest of a document already being
// written is a caller mistake, and blocking it would just hide the
// race behind latency.
type DocumentLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewDocumentLocks creates an empty registry.
func NewDocumentLocks() *DocumentLocks {
	return &DocumentLocks{held: make(map[string]bool)}
}

// Acquire takes the lock for documentID or returns a busy error.
func (l *DocumentLocks) Acquire(documentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[documentID] {
		return dircerrors.Busy(documentID)
	}
	l.held[documentID] = true
	return nil
}

// Release frees the lock. Releasing an unheld lock is a no-op.
func (l *DocumentLocks) Release(documentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, documentID)
}
