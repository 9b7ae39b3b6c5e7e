package machine

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/core"
)

type ConferenceState string

const (
	NotJoined ConferenceState = "NOT_JOINED"
	Joining   ConferenceState = "JOINING"
	Joined    ConferenceState = "JOINED"
)

// ConferenceService is the part of the conference handle the machine drives.
type ConferenceService interface {
	Init(id string) error
	// Leave leaves a joined conference or abandons a pending join.
	Leave()
	IsJoined() core.Signal
	OnError(fn func(error)) (cancel func())
}

// Conference mirrors the joined level of the conference service. A conference
// error or a refused join marks it failed until the next Reset.
type Conference struct {
	base[ConferenceState]
	svc     ConferenceService
	id      string
	failed  error
	leaving bool
	cancels []func()
}

func NewConference(svc ConferenceService, id string, deps Deps) *Conference {
	m := &Conference{base: base[ConferenceState]{name: "conference", state: NotJoined, deps: deps}, svc: svc, id: id}
	m.cancels = []func(){
		svc.IsJoined().Subscribe(m.onLoop(m.observe)),
		svc.OnError(func(err error) { m.fail(err) }),
	}
	return m
}

// Failed is the error that ended the last conference, if any.
func (m *Conference) Failed() error { return m.failed }

// Join requests a join from NOT_JOINED.
func (m *Conference) Join() bool {
	if m.state != NotJoined || m.failed != nil {
		return false
	}
	if err := m.svc.Init(m.id); err != nil {
		log.Error().Err(err).Str("module", "app.machine").Msg("join refused")
		m.fail(err)
		return true
	}
	m.set(Joining)
	return true
}

// fail runs on the loop: conference errors are delivered there.
func (m *Conference) fail(err error) {
	m.failed = err
	m.leaving = false
	m.set(NotJoined)
	m.changed()
}

func (m *Conference) observe(joined bool) {
	switch {
	case joined:
		m.set(Joined)
	case m.state == Joined:
		m.leaving = false
		m.set(NotJoined)
	}
}

// Reset leaves when JOINED and clears a failure. The leave is requested
// once; the machine returns to NOT_JOINED on the joined level. From JOINING
// the pending join is abandoned and the machine is NOT_JOINED at once.
func (m *Conference) Reset() bool {
	acted := false
	if m.failed != nil {
		m.failed = nil
		acted = true
	}
	switch {
	case m.state == Joining:
		log.Info().Str("module", "app.machine").Msg("abandoning pending join")
		m.svc.Leave()
		m.set(NotJoined)
		return true
	case m.state == Joined && !m.leaving:
		m.leaving = true
		m.svc.Leave()
		acted = true
	}
	if acted {
		m.changed()
	}
	return acted
}

func (m *Conference) Close() {
	for _, c := range m.cancels {
		c()
	}
}
