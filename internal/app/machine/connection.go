package machine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/core"
)

type ConnectionState string

const (
	Disconnected ConnectionState = "DISCONNECTED"
	Connecting   ConnectionState = "CONNECTING"
	Connected    ConnectionState = "CONNECTED"
)

// Connection mirrors the connectivity reported by the runtime. It has no
// disconnect action of its own.
type Connection struct {
	base[ConnectionState]
	rt     core.Runtime
	id     string
	err    error
	cancel func()
}

func NewConnection(rt core.Runtime, id string, deps Deps) *Connection {
	m := &Connection{base: base[ConnectionState]{name: "connection", state: Disconnected, deps: deps}, rt: rt, id: id}
	m.cancel = rt.Connected().Subscribe(m.onLoop(m.observe))
	return m
}

// Connect is a no-op unless DISCONNECTED. A refused request is kept as Err
// and not retried until ClearError.
func (m *Connection) Connect(ctx context.Context) bool {
	if m.state != Disconnected || m.err != nil {
		return false
	}
	m.set(Connecting)
	if err := m.rt.Connect(ctx, m.id); err != nil {
		log.Error().Err(err).Str("module", "app.machine").Msg("connect refused")
		m.err = err
		m.set(Disconnected)
	}
	return true
}

// observe applies the connected level. A false level while CONNECTING is
// the expected pre-connection value.
func (m *Connection) observe(connected bool) {
	switch {
	case connected:
		m.set(Connected)
	case m.state == Connected:
		m.set(Disconnected)
	}
}

func (m *Connection) Err() error { return m.err }

func (m *Connection) ClearError() {
	if m.err != nil {
		m.err = nil
		m.changed()
	}
}

func (m *Connection) Close() { m.cancel() }
