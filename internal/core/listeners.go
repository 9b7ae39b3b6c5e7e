package core

import "sync"

// Listeners is a set of callbacks that can be removed individually.
// The zero value is ready to use.
type Listeners[F any] struct {
	mu   sync.RWMutex
	next uint64
	fns  map[uint64]F
}

// Add registers fn; the returned cancel is idempotent.
func (l *Listeners[F]) Add(fn F) (cancel func()) {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[uint64]F)
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// Snapshot returns the current callbacks in registration order.
func (l *Listeners[F]) Snapshot() []F {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]F, 0, len(l.fns))
	for id := uint64(0); id < l.next; id++ {
		if fn, ok := l.fns[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (l *Listeners[F]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fns)
}

func (l *Listeners[F]) Clear() {
	l.mu.Lock()
	l.fns = nil
	l.mu.Unlock()
}
