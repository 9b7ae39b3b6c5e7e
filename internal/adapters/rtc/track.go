package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

// Source is the capture a LocalTrack wraps. mediadevices tracks satisfy it.
type Source interface {
	webrtc.TrackLocal
	OnEnded(fn func(error))
	Close() error
}

// LocalTrack is a captured track owned by this client.
type LocalTrack struct {
	kind domain.TrackKind
	src  Source

	mu       sync.Mutex
	disposed bool
	stopped  core.Listeners[func()]
}

func newLocalTrack(kind domain.TrackKind, src Source) *LocalTrack {
	t := &LocalTrack{kind: kind, src: src}
	src.OnEnded(t.ended)
	return t
}

// NewLocalTrack wraps an already open source.
func NewLocalTrack(kind domain.TrackKind, src Source) *LocalTrack { return newLocalTrack(kind, src) }

func (t *LocalTrack) ID() string                          { return t.src.ID() }
func (t *LocalTrack) Kind() domain.TrackKind              { return t.kind }
func (t *LocalTrack) ParticipantID() domain.ParticipantID { return "" }
func (t *LocalTrack) IsLocal() bool                       { return true }
func (t *LocalTrack) IsMuted() bool                       { return false }

// TrackLocal is what a Publisher sends.
func (t *LocalTrack) TrackLocal() webrtc.TrackLocal { return t.src }

func (t *LocalTrack) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// Dispose closes the capture. Disposing twice is a no-op.
func (t *LocalTrack) Dispose(context.Context) error {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return nil
	}
	t.disposed = true
	t.mu.Unlock()
	return t.src.Close()
}

func (t *LocalTrack) OnStopped(fn func()) func() { return t.stopped.Add(fn) }

// ended fires when the capture stops on its own, e.g. the shared window
// went away. Closing a disposed track is not a stop.
func (t *LocalTrack) ended(err error) {
	if t.Disposed() {
		return
	}
	log.Info().Err(err).Str("module", "webrtc").Str("track", t.ID()).Msg("local track ended")
	for _, fn := range t.stopped.Snapshot() {
		fn()
	}
}
