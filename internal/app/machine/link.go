package machine

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

type LinkState string

const (
	Unlinked LinkState = "UNLINKED"
	Linked   LinkState = "LINKED"
	PeerLeft LinkState = "PEER_LEFT"
)

// LinkService is the part of the conference handle the link machine needs.
type LinkService interface {
	SendLink(main domain.ParticipantID) error
	IsJoined() core.Signal
	Conference() core.Conference
}

// Link ties this session to a primary peer and watches for it to leave.
// With an empty peer it still announces the link but watches nothing.
type Link struct {
	base[LinkState]
	svc     LinkService
	peer    domain.ParticipantID
	gen     uint64
	unwatch func()
}

func NewLink(svc LinkService, peer domain.ParticipantID, deps Deps) *Link {
	return &Link{base: base[LinkState]{name: "link", state: Unlinked, deps: deps}, svc: svc, peer: peer}
}

func (m *Link) Peer() domain.ParticipantID { return m.peer }

// Link acts from UNLINKED only.
func (m *Link) Link() bool {
	if m.state != Unlinked {
		return false
	}
	if conf := m.svc.Conference(); conf != nil && m.peer != "" {
		gen := m.gen
		m.unwatch = conf.OnParticipantLeft(func(id domain.ParticipantID) {
			m.deps.Post(func() { m.left(gen, id) })
		})
	}
	if err := m.svc.SendLink(m.peer); err != nil {
		log.Warn().Err(err).Str("module", "app.machine").Str("peer", string(m.peer)).Msg("send link")
	}
	m.set(Linked)
	return true
}

func (m *Link) left(gen uint64, id domain.ParticipantID) {
	if gen != m.gen || m.state != Linked || id != m.peer {
		return
	}
	if !m.svc.IsJoined().Value() {
		return
	}
	log.Info().Str("module", "app.machine").Str("peer", string(id)).Msg("linked peer left")
	m.set(PeerLeft)
}

// Reset drops the watch and returns to UNLINKED.
func (m *Link) Reset() bool {
	if m.state == Unlinked {
		return false
	}
	m.gen++
	if m.unwatch != nil {
		m.unwatch()
		m.unwatch = nil
	}
	m.set(Unlinked)
	return true
}
