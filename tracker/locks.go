package tracker

import "sync"

// scopeLocks serialises mutations per owning user. Entries are reference
// counted and dropped once nobody holds or waits on them.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[uint]*scopeLock
}

type scopeLock struct {
	sync.Mutex
	refs int
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[uint]*scopeLock)}
}

func (l *scopeLocks) lock(userID uint) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[userID]
	if !ok {
		sl = &scopeLock{}
		l.locks[userID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()

	return func() {
		sl.Unlock()

		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *scopeLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
