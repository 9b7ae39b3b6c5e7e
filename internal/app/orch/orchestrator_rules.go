package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/app/machine"
	"github.com/dkeye/ScreenShare/internal/domain"
)

// maxPasses bounds one reconcile; every rule moves a machine forward, so a
// fixed point is reached well before.
const maxPasses = 8

// Reconcile applies the rule table until nothing changes and returns the
// number of actions issued. At a fixed point it issues nothing.
func (o *Orchestrator) Reconcile() int {
	if o.ctx == nil {
		return 0
	}
	total := 0
	for pass := 0; ; pass++ {
		if pass == maxPasses {
			log.Warn().Str("module", "app.orch").Int("actions", total).Msg("reconcile did not settle")
			break
		}
		n := o.step()
		total += n
		if n == 0 {
			break
		}
	}
	o.publishStatus()
	return total
}

func (o *Orchestrator) step() int {
	n := o.act("connection.connect", o.Connection.Connect(o.ctx))
	n += o.act("media.init", o.Media.Init(o.ctx))
	// the gate holds back sharing only; tear-down runs disconnected too
	if o.desire == domain.DesireIdle {
		return n + o.teardown()
	}
	if o.Connection.State() != machine.Connected || o.Media.State() != machine.MediaReady {
		return n
	}
	return n + o.share()
}

func (o *Orchestrator) act(action string, acted bool) int {
	if !acted {
		return 0
	}
	log.Info().Str("module", "app.orch").Str("action", action).Msg("reconcile")
	return 1
}

// share walks capture, join and link in order and ends the session when the
// peer leaves, the capture stops or the conference fails.
func (o *Orchestrator) share() int {
	n := 0
	if o.Track.State() == machine.TrackIdle {
		n += o.act("track.create", o.Track.Create(o.ctx))
	}
	if o.Track.State() == machine.TrackReady && o.Conference.State() == machine.NotJoined {
		n += o.act("conference.join", o.Conference.Join())
	}
	if o.Conference.State() == machine.Joined && o.Link.State() == machine.Unlinked {
		n += o.act("link.link", o.Link.Link())
	}
	if o.Conference.State() == machine.Joined && o.Track.State() == machine.TrackReady {
		o.Service.PublishLocalTracks()
	}

	var reason string
	switch {
	case o.Link.State() == machine.PeerLeft:
		reason = "peer left"
	case o.Track.State() == machine.TrackStopped:
		reason = "track stopped"
	case o.Conference.Failed() != nil:
		reason = "conference failed"
	default:
		return n
	}
	o.setDesire(domain.DesireIdle, false, reason)
	return n + 1
}

// teardown releases one layer per pass: conference (joined or still
// joining), then link, then track.
func (o *Orchestrator) teardown() int {
	track := o.Track.State()
	link := o.Link.State()
	switch {
	case o.Conference.State() != machine.NotJoined || o.Conference.Failed() != nil:
		return o.act("conference.reset", o.Conference.Reset())
	case link == machine.Linked || link == machine.PeerLeft:
		return o.act("link.reset", o.Link.Reset())
	case link == machine.Unlinked && (track == machine.TrackReady || track == machine.TrackStopped):
		return o.act("track.reset", o.Track.Reset())
	case track == machine.TrackIdle && o.reshare:
		o.setDesire(domain.DesireSharing, false, "reshare")
		return 1
	}
	return 0
}
