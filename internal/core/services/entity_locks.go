package services

import "sync"

// entityLocks serialises writes per entity id. Writes to different ids run
// concurrently; lockAll excludes every per-id holder.
type entityLocks struct {
	all sync.RWMutex

	mu  sync.Mutex
	ids map[string]*idLock
}

type idLock struct {
	sync.Mutex
	refs int
}

// lock acquires the lock of id and returns its release.
func (l *entityLocks) lock(id string) func() {
	l.all.RLock()

	l.mu.Lock()
	if l.ids == nil {
		l.ids = make(map[string]*idLock)
	}
	e, ok := l.ids[id]
	if !ok {
		e = &idLock{}
		l.ids[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.ids, id)
		}
		l.mu.Unlock()

		l.all.RUnlock()
	}
}

// lockAll waits for every per-id holder and blocks new ones until released.
func (l *entityLocks) lockAll() func() {
	l.all.Lock()
	return l.all.Unlock
}

// held reports the number of ids with a holder or waiter.
func (l *entityLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}
