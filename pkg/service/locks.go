package service

import (
	"sync"

	"github.com/google/uuid"
)

// loanLocks hands out one mutex per loan id so that payments against the
// same loan are applied one at a time while different loans proceed in
// parallel. Entries are dropped once nobody holds or waits for them.
type loanLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*loanLock
}

type loanLock struct {
	sync.Mutex
	refs int
}

func newLoanLocks() *loanLocks {
	return &loanLocks{locks: make(map[uuid.UUID]*loanLock)}
}

// lock blocks until the caller owns id and returns the release function.
func (l *loanLocks) lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()
	ll, ok := l.locks[id]
	if !ok {
		ll = &loanLock{}
		l.locks[id] = ll
	}
	ll.refs++
	l.mu.Unlock()

	ll.Lock()
	return func() {
		ll.Unlock()
		l.mu.Lock()
		ll.refs--
		if ll.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *loanLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
