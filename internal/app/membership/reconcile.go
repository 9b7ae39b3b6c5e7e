package membership

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

// PositionPayload is the JSON carried by a "pos" command.
type PositionPayload struct {
	ID domain.ParticipantID `json:"id"`
	X  float64              `json:"x"`
	Y  float64              `json:"y"`
}

// LinkPayload is the JSON carried by a "link" command.
type LinkPayload struct {
	ID   domain.ParticipantID `json:"id"`
	Main domain.ParticipantID `json:"main"`
}

// Reconciler maps conference events 1:1 onto store commands. Handlers are
// posted to the session loop, so they never run concurrently.
type Reconciler struct {
	Store *Store
	Post  func(func())
	// DisposeTimeout bounds the release of removed remote tracks.
	DisposeTimeout time.Duration
}

// Bind registers every roster handler on conf and returns a func that
// removes them all.
func (r *Reconciler) Bind(conf core.Conference) (unbind func()) {
	cancels := []func(){
		conf.OnParticipantJoined(func(id domain.ParticipantID, name string) {
			r.Post(func() { r.Store.AddParticipant(id, name) })
		}),
		conf.OnParticipantLeft(func(id domain.ParticipantID) {
			r.Post(func() { r.Store.RemoveParticipant(id) })
		}),
		conf.OnTrackAdded(func(t core.Track) {
			r.Post(func() { r.onTrackAdded(t) })
		}),
		conf.OnTrackRemoved(func(t core.Track) {
			r.Post(func() { r.onTrackRemoved(t) })
		}),
		conf.OnTrackMuteChanged(func(t core.Track) {
			r.Post(func() { r.onTrackMuteChanged(t) })
		}),
		conf.OnMessage(func(id domain.ParticipantID, text string, at time.Time) {
			r.Post(func() { r.onMessage(id, text, at) })
		}),
		conf.AddCommandListener(core.CommandPosition, func(_ domain.ParticipantID, cmd core.Command) {
			r.Post(func() { r.onPosition(cmd) })
		}),
		conf.AddCommandListener(core.CommandLink, func(_ domain.ParticipantID, cmd core.Command) {
			r.Post(func() { r.onLink(cmd) })
		}),
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func (r *Reconciler) onTrackAdded(t core.Track) {
	if t.IsLocal() {
		return
	}
	id := t.ParticipantID()
	var err error
	if t.Kind() == domain.TrackAudio {
		err = r.Store.SetAudioTrack(id, t)
	} else {
		err = r.Store.SetVideoTrack(id, t)
	}
	if errors.Is(err, ErrUnknownParticipant) {
		for _, old := range r.Store.ParkTrack(t) {
			go r.dispose(old)
		}
		log.Debug().Str("module", "app.membership").Str("id", string(id)).Str("track", t.ID()).Msg("track parked until join")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "app.membership").Str("id", string(id)).Str("track", t.ID()).Msg("remote track rejected")
	}
}

func (r *Reconciler) onTrackRemoved(t core.Track) {
	id := t.ParticipantID()
	if !r.Store.UnparkTrack(t) {
		if p, ok := r.Store.Participant(id); ok {
			if t.Kind() == domain.TrackAudio && sameTrack(p.AudioTrack, t) {
				_ = r.Store.ClearAudioTrack(id)
			}
			if t.Kind() != domain.TrackAudio && sameTrack(p.VideoTrack, t) {
				_ = r.Store.ClearVideoTrack(id)
			}
		}
	}
	go r.dispose(t)
}

func sameTrack(a, b core.Track) bool {
	return a != nil && b != nil && a.ID() == b.ID()
}

func (r *Reconciler) dispose(t core.Track) { DisposeTrack(t, r.DisposeTimeout) }

// DisposeTrack releases a remote track, giving up after timeout.
func DisposeTrack(t core.Track, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := t.Dispose(ctx); err != nil {
		log.Debug().Err(err).Str("module", "app.membership").Str("track", t.ID()).Msg("dispose remote track")
	}
}

func (r *Reconciler) onTrackMuteChanged(t core.Track) {
	if t.Kind() != domain.TrackAudio {
		return
	}
	if err := r.Store.SetMuted(t.ParticipantID(), t.IsMuted()); err != nil {
		log.Debug().Err(err).Str("module", "app.membership").Str("id", string(t.ParticipantID())).Msg("mute change ignored")
	}
}

func (r *Reconciler) onMessage(id domain.ParticipantID, text string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	r.Store.AppendMessage(id, text, at)
}

func (r *Reconciler) onPosition(cmd core.Command) {
	var p PositionPayload
	if err := json.Unmarshal([]byte(cmd.Value), &p); err != nil {
		log.Error().Err(err).Str("module", "app.membership").Msg("bad pos payload")
		return
	}
	if err := r.Store.UpdatePosition(p.ID, domain.Point{X: p.X, Y: p.Y}); err != nil {
		log.Debug().Err(err).Str("module", "app.membership").Str("id", string(p.ID)).Msg("pos ignored")
	}
}

func (r *Reconciler) onLink(cmd core.Command) {
	var p LinkPayload
	if err := json.Unmarshal([]byte(cmd.Value), &p); err != nil {
		log.Error().Err(err).Str("module", "app.membership").Msg("bad link payload")
		return
	}
	if err := r.Store.UpdateLink(p.ID, p.Main); err != nil {
		log.Debug().Err(err).Str("module", "app.membership").Str("id", string(p.ID)).Str("main", string(p.Main)).Msg("link ignored")
	}
}
