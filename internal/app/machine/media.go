package machine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/core"
)

type MediaState string

const (
	Uninitialized MediaState = "UNINITIALIZED"
	Initializing  MediaState = "INITIALIZING"
	MediaReady    MediaState = "READY"
)

// MediaInit bootstraps the media runtime exactly once.
type MediaInit struct {
	base[MediaState]
	rt     core.Runtime
	err    error
	cancel func()
}

func NewMediaInit(rt core.Runtime, deps Deps) *MediaInit {
	m := &MediaInit{base: base[MediaState]{name: "media", state: Uninitialized, deps: deps}, rt: rt}
	m.cancel = rt.Ready().Subscribe(m.onLoop(m.observe))
	return m
}

// Init only acts from UNINITIALIZED.
func (m *MediaInit) Init(ctx context.Context) bool {
	if m.state != Uninitialized || m.err != nil {
		return false
	}
	m.set(Initializing)
	if err := m.rt.Init(ctx); err != nil {
		log.Error().Err(err).Str("module", "app.machine").Msg("runtime init failed")
		m.err = err
		m.set(Uninitialized)
	}
	return true
}

func (m *MediaInit) observe(ready bool) {
	if ready {
		m.set(MediaReady)
	}
}

func (m *MediaInit) Err() error { return m.err }

func (m *MediaInit) ClearError() {
	if m.err != nil {
		m.err = nil
		m.changed()
	}
}

func (m *MediaInit) Close() { m.cancel() }
