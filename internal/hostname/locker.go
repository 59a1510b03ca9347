package hostname

import (
	"context"
	"sync"
)

// Locker serializes work per hostname. Entries are removed once no holder or
// waiter remains, so the map only grows with concurrent hostnames.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{} // buffered(1); a token in the channel means locked
	refs int
}

// NewLocker returns an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock blocks until the hostname is free or ctx is done. On success the
// returned function releases the lock.
func (l *Locker) Lock(ctx context.Context, hostname string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[hostname]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[hostname] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.release(hostname, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(hostname, e)
		return nil, ctx.Err()
	}
}

func (l *Locker) release(hostname string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, hostname)
	}
}

// Len returns the number of hostnames currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
