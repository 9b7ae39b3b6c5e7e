// Package orch drives the session sub-machines towards the user's desire.
package orch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/app/machine"
	"github.com/dkeye/ScreenShare/internal/app/membership"
	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

// Service is the conference handle as seen by the orchestrator.
type Service interface {
	machine.ConferenceService
	machine.LinkService
	PublishLocalTracks()
}

type Options struct {
	// SessionID is the conference to join.
	SessionID string
	// LinkPrimary is the peer whose departure ends the session.
	LinkPrimary domain.ParticipantID
	// AutoStart starts with a desire to share.
	AutoStart      bool
	DisposeTimeout time.Duration
}

// Status is a read-only view of the session, safe from any goroutine.
type Status struct {
	Desire     domain.Desire           `json:"desire"`
	Reshare    bool                    `json:"reshare"`
	Connection machine.ConnectionState `json:"connection"`
	Media      machine.MediaState      `json:"media"`
	Track      machine.TrackState      `json:"track"`
	Conference machine.ConferenceState `json:"conference"`
	Link       machine.LinkState       `json:"link"`
	Error      string                  `json:"error,omitempty"`
}

// Orchestrator owns every machine. All fields are touched on the session
// loop only; intents and Status may be used from anywhere.
type Orchestrator struct {
	Connection *machine.Connection
	Media      *machine.MediaInit
	Track      *machine.Track
	Conference *machine.Conference
	Link       *machine.Link
	Service    Service

	post      func(func())
	opts      Options
	ctx       context.Context
	desire    domain.Desire
	reshare   bool
	scheduled bool
	status    atomic.Pointer[Status]
}

func New(rt core.Runtime, svc Service, store *membership.Store, post func(func()), opts Options) *Orchestrator {
	o := &Orchestrator{Service: svc, post: post, opts: opts, desire: domain.DesireIdle}
	deps := machine.Deps{Post: post, Notify: o.schedule}
	o.Connection = machine.NewConnection(rt, opts.SessionID, deps)
	o.Media = machine.NewMediaInit(rt, deps)
	o.Track = machine.NewTrack(rt, store, domain.TrackDesktop, opts.DisposeTimeout, deps)
	o.Conference = machine.NewConference(svc, opts.SessionID, deps)
	o.Link = machine.NewLink(svc, opts.LinkPrimary, deps)
	o.status.Store(&Status{Desire: domain.DesireIdle})
	return o
}

// Open starts reconciling. ctx bounds every collaborator call.
func (o *Orchestrator) Open(ctx context.Context) {
	o.post(func() {
		o.ctx = ctx
		if o.opts.AutoStart {
			o.desire = domain.DesireSharing
		}
		log.Info().Str("module", "app.orch").Str("session", o.opts.SessionID).Str("desire", string(o.desire)).Msg("session opened")
		o.Reconcile()
	})
}

// Close stops observing the collaborators.
func (o *Orchestrator) Close() {
	o.post(func() {
		o.Connection.Close()
		o.Media.Close()
		o.Conference.Close()
		o.ctx = nil
	})
}

// StartSharing asks for a share and forgets earlier refusals.
func (o *Orchestrator) StartSharing() {
	o.post(func() {
		o.Connection.ClearError()
		o.Media.ClearError()
		o.setDesire(domain.DesireSharing, false, "start")
		o.Reconcile()
	})
}

func (o *Orchestrator) StopSharing() {
	o.post(func() {
		o.setDesire(domain.DesireIdle, false, "stop")
		o.Reconcile()
	})
}

// Reshare tears the session down and shares again once the track is IDLE.
func (o *Orchestrator) Reshare() {
	o.post(func() {
		o.setDesire(domain.DesireIdle, true, "reshare")
		o.Reconcile()
	})
}

// Status is the view published by the last reconcile.
func (o *Orchestrator) Status() Status { return *o.status.Load() }

func (o *Orchestrator) setDesire(d domain.Desire, reshare bool, reason string) {
	if o.desire == d && o.reshare == reshare {
		return
	}
	log.Info().Str("module", "app.orch").Str("desire", string(d)).Bool("reshare", reshare).Str("reason", reason).Msg("desire changed")
	o.desire = d
	o.reshare = reshare
}

// schedule coalesces machine notifications into one posted reconcile.
func (o *Orchestrator) schedule() {
	if o.scheduled {
		return
	}
	o.scheduled = true
	o.post(func() {
		o.scheduled = false
		o.Reconcile()
	})
}

func (o *Orchestrator) publishStatus() {
	st := &Status{
		Desire:     o.desire,
		Reshare:    o.reshare,
		Connection: o.Connection.State(),
		Media:      o.Media.State(),
		Track:      o.Track.State(),
		Conference: o.Conference.State(),
		Link:       o.Link.State(),
	}
	for _, err := range []error{o.Connection.Err(), o.Media.Err(), o.Conference.Failed(), o.Track.Err()} {
		if err != nil {
			st.Error = err.Error()
			break
		}
	}
	o.status.Store(st)
}
