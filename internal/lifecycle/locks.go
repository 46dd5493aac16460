package lifecycle

import (
	"fmt"
	"sync"

	"github.com/zulandar/drydock/internal/policy"
)

// ownerLocks serialises lifecycle mutations per ownership scope. Without it,
// two concurrent creates for the same new owner could both pass the absence
// checks and both persist a row, breaking the at-most-one invariant.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for the scope's owner and returns its unlock func.
func (l *ownerLocks) lock(scope policy.Scope) func() {
	key := fmt.Sprintf("%s:%d", scope.OwnerField(), scope.OwnerID())

	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
