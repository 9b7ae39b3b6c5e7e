package machine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/app/membership"
	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

type TrackState string

const (
	TrackIdle      TrackState = "IDLE"
	TrackCreating  TrackState = "CREATING"
	TrackReady     TrackState = "READY"
	TrackDisposing TrackState = "DISPOSING"
	TrackStopped   TrackState = "STOPPED"
)

// Track owns the local capture tracks. gen is bumped by Reset so that a
// capture or stop notification belonging to an earlier cycle is discarded;
// busy is set while a capture or disposal is outstanding.
type Track struct {
	base[TrackState]
	rt      core.Runtime
	store   *membership.Store
	kind    domain.TrackKind
	timeout time.Duration

	tracks  []core.Track
	gen     uint64
	busy    bool
	unwatch []func()
	lastErr error
}

func NewTrack(rt core.Runtime, store *membership.Store, kind domain.TrackKind, disposeTimeout time.Duration, deps Deps) *Track {
	if disposeTimeout <= 0 {
		disposeTimeout = 5 * time.Second
	}
	return &Track{
		base:    base[TrackState]{name: "track", state: TrackIdle, deps: deps},
		rt:      rt,
		store:   store,
		kind:    kind,
		timeout: disposeTimeout,
	}
}

// Busy reports an outstanding capture or disposal.
func (m *Track) Busy() bool { return m.busy }

// Err is the last capture failure.
func (m *Track) Err() error { return m.lastErr }

// Tracks are the held local tracks, READY only.
func (m *Track) Tracks() []core.Track { return m.tracks }

// Create starts a capture from IDLE. It is a no-op in any other state or
// while an earlier operation drains.
func (m *Track) Create(ctx context.Context) bool {
	if m.state != TrackIdle || m.busy {
		return false
	}
	m.gen++
	gen := m.gen
	m.busy = true
	m.lastErr = nil
	m.set(TrackCreating)
	go func() {
		tracks, err := m.rt.CreateCaptureTracks(ctx, m.kind)
		m.deps.Post(func() { m.created(gen, tracks, err) })
	}()
	return true
}

func (m *Track) created(gen uint64, tracks []core.Track, err error) {
	if gen != m.gen {
		// reset while capturing
		if err != nil {
			m.busy = false
			m.changed()
			return
		}
		log.Debug().Str("module", "app.machine").Int("tracks", len(tracks)).Msg("disposing stale capture")
		m.dispose(tracks, func() {
			m.busy = false
			m.changed()
		})
		return
	}
	m.busy = false
	if err != nil {
		log.Warn().Err(err).Str("module", "app.machine").Msg("capture failed")
		m.lastErr = err
		m.set(TrackStopped)
		return
	}
	m.tracks = tracks
	for _, t := range tracks {
		m.unwatch = append(m.unwatch, t.OnStopped(func() {
			m.deps.Post(func() { m.stopped(gen) })
		}))
	}
	m.store.SetLocalTracks(tracks)
	m.set(TrackReady)
}

func (m *Track) stopped(gen uint64) {
	if gen != m.gen {
		return
	}
	if m.state == TrackCreating || m.state == TrackReady {
		log.Info().Str("module", "app.machine").Msg("local track stopped")
		m.set(TrackStopped)
	}
}

// Reset releases held tracks and returns to IDLE. From CREATING the pending
// capture is invalidated and disposed when it completes.
func (m *Track) Reset() bool {
	if m.state == TrackIdle || m.state == TrackDisposing {
		return false
	}
	m.gen++
	for _, cancel := range m.unwatch {
		cancel()
	}
	m.unwatch = nil
	tracks := m.tracks
	m.tracks = nil

	if len(tracks) == 0 {
		m.store.SetLocalTracks(nil)
		m.set(TrackIdle)
		return true
	}
	gen := m.gen
	m.busy = true
	m.set(TrackDisposing)
	m.dispose(tracks, func() {
		m.busy = false
		if gen != m.gen || m.state != TrackDisposing {
			m.changed()
			return
		}
		m.store.SetLocalTracks(nil)
		m.set(TrackIdle)
	})
	return true
}

// dispose releases tracks off the loop and posts done back onto it.
// Disposal errors, already-disposed tracks included, are logged only.
func (m *Track) dispose(tracks []core.Track, done func()) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		for _, t := range tracks {
			if t.Disposed() {
				continue
			}
			if err := t.Dispose(ctx); err != nil {
				log.Debug().Err(err).Str("module", "app.machine").Str("track", t.ID()).Msg("dispose local track")
			}
		}
		m.deps.Post(done)
	}()
}
