package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

var ErrCaptureDenied = errors.New("capture permission denied")

// Runtime is an in-memory core.Runtime. With the Auto* switches on, Init and
// Connect complete immediately; otherwise tests flip the levels by hand.
type Runtime struct {
	Journal *Journal

	ready     *core.Level
	connected *core.Level

	mu          sync.Mutex
	AutoReady   bool
	AutoConnect bool
	AutoJoin    bool
	CaptureErr  error
	// CaptureGate, when set, blocks capture until a value is received.
	CaptureGate chan struct{}
	captured    []*Track
	confs       []*Conference
	seq         int
}

func NewRuntime() *Runtime {
	return &Runtime{
		Journal:     &Journal{},
		ready:       core.NewLevel(false),
		connected:   core.NewLevel(false),
		AutoReady:   true,
		AutoConnect: true,
		AutoJoin:    true,
	}
}

func (r *Runtime) Init(ctx context.Context) error {
	r.Journal.Record("runtime.init")
	if r.auto(&r.AutoReady) {
		go r.ready.Set(true)
	}
	return nil
}

func (r *Runtime) Ready() core.Signal { return r.ready }

func (r *Runtime) Connect(ctx context.Context, id string) error {
	r.Journal.Record("connection.connect")
	if r.auto(&r.AutoConnect) {
		go r.connected.Set(true)
	}
	return nil
}

func (r *Runtime) Connected() core.Signal { return r.connected }

// SetReady and SetConnected drive the levels from a test.
func (r *Runtime) SetReady(v bool)     { r.ready.Set(v) }
func (r *Runtime) SetConnected(v bool) { r.connected.Set(v) }

func (r *Runtime) CreateCaptureTracks(ctx context.Context, kind domain.TrackKind) ([]core.Track, error) {
	r.Journal.Record("track.create")
	r.mu.Lock()
	gate := r.CaptureGate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CaptureErr != nil {
		return nil, r.CaptureErr
	}
	r.seq++
	t := NewTrack(fmt.Sprintf("%s-%d", kind, r.seq), kind, "", true)
	t.journal = r.Journal
	r.captured = append(r.captured, t)
	return []core.Track{t}, nil
}

// Captured returns every track handed out so far.
func (r *Runtime) Captured() []*Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Track, len(r.captured))
	copy(out, r.captured)
	return out
}

// LastCaptured is nil before the first capture.
func (r *Runtime) LastCaptured() *Track {
	c := r.Captured()
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

func (r *Runtime) InitConference(name domain.ConferenceName, opts core.ConferenceOptions) (core.Conference, error) {
	r.Journal.Record("conference.init")
	r.mu.Lock()
	defer r.mu.Unlock()
	c := NewConference("self")
	c.Name = name
	c.journal = r.Journal
	c.AutoJoin = r.AutoJoin
	r.confs = append(r.confs, c)
	return c, nil
}

// Conference is the latest conference handed out, or nil.
func (r *Runtime) Conference() *Conference {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.confs) == 0 {
		return nil
	}
	return r.confs[len(r.confs)-1]
}

// SetAutoConnect switches automatic connection while the runtime is in use.
func (r *Runtime) SetAutoConnect(v bool) {
	r.mu.Lock()
	r.AutoConnect = v
	r.mu.Unlock()
}

// SetAutoJoin applies to conferences created afterwards.
func (r *Runtime) SetAutoJoin(v bool) {
	r.mu.Lock()
	r.AutoJoin = v
	r.mu.Unlock()
}

func (r *Runtime) auto(flag *bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *flag
}
