package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Loop serialises every state transition of a session on one goroutine.
// Post is safe from any goroutine, including the loop itself.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues fn without blocking.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes posted funcs in order until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Str("module", "core.loop").Msg("loop started")
	for {
		for {
			fn, ok := l.pop()
			if !ok {
				break
			}
			l.exec(fn)
		}
		select {
		case <-ctx.Done():
			log.Info().Str("module", "core.loop").Msg("loop ctx done")
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "core.loop").Interface("panic", r).Msg("loop handler panicked")
		}
	}()
	fn()
}
