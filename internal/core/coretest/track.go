// Package coretest provides in-memory collaborators for session tests.
package coretest

import (
	"context"
	"sync"

	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

// Track is an in-memory core.Track.
type Track struct {
	id    string
	kind  domain.TrackKind
	owner domain.ParticipantID
	local bool

	mu           sync.Mutex
	muted        bool
	disposed     bool
	disposeCalls int
	// DisposeGate, when set, blocks Dispose until it is closed.
	DisposeGate chan struct{}
	journal     *Journal

	stopped core.Listeners[func()]
}

func NewTrack(id string, kind domain.TrackKind, owner domain.ParticipantID, local bool) *Track {
	return &Track{id: id, kind: kind, owner: owner, local: local}
}

func (t *Track) ID() string                          { return t.id }
func (t *Track) Kind() domain.TrackKind              { return t.kind }
func (t *Track) ParticipantID() domain.ParticipantID { return t.owner }
func (t *Track) IsLocal() bool                       { return t.local }

func (t *Track) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *Track) SetMuted(v bool) {
	t.mu.Lock()
	t.muted = v
	t.mu.Unlock()
}

func (t *Track) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

func (t *Track) DisposeCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposeCalls
}

func (t *Track) Dispose(ctx context.Context) error {
	t.mu.Lock()
	gate := t.DisposeGate
	t.disposeCalls++
	t.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.mu.Lock()
	t.disposed = true
	t.mu.Unlock()
	t.journal.Record("track.dispose")
	return nil
}

func (t *Track) OnStopped(fn func()) func() { return t.stopped.Add(fn) }

// Stop fires the "track stopped" signal as a browser stop button would.
func (t *Track) Stop() {
	for _, fn := range t.stopped.Snapshot() {
		fn()
	}
}
