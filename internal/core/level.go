package core

import "sync"

// Signal is a level-triggered boolean. Subscribers see every observed value,
// not only transitions, starting with the current one.
type Signal interface {
	Value() bool
	Subscribe(fn func(bool)) (cancel func())
}

// Level is the settable Signal implementation used by adapters.
type Level struct {
	mu    sync.Mutex
	value bool
	subs  Listeners[func(bool)]
}

func NewLevel(initial bool) *Level {
	return &Level{value: initial}
}

func (l *Level) Value() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Set records v and notifies every subscriber, even when v did not change.
func (l *Level) Set(v bool) {
	l.mu.Lock()
	l.value = v
	l.mu.Unlock()
	for _, fn := range l.subs.Snapshot() {
		fn(v)
	}
}

func (l *Level) Subscribe(fn func(bool)) func() {
	cancel := l.subs.Add(fn)
	fn(l.Value())
	return cancel
}
