package core

import (
	"context"
	"time"

	"github.com/dkeye/ScreenShare/internal/domain"
)

const (
	CommandPosition = "pos"
	CommandLink     = "link"
)

// Command is an application level keyed command; Value carries JSON.
type Command struct {
	Value string `json:"value"`
}

// Conference is the handle to one conference membership.
// Every On* registration returns a func that removes the handler.
// Handlers may run on any goroutine.
type Conference interface {
	Join() error
	Leave(ctx context.Context) error
	IsJoined() bool
	MyUserID() domain.ParticipantID

	SetDisplayName(name string)
	SendTextMessage(text string) error
	// AddTrack publishes a local track. Adding the same track twice fails
	// with an error callers are expected to ignore.
	AddTrack(ctx context.Context, t Track) error

	SendCommand(name string, cmd Command) error
	AddCommandListener(name string, fn func(from domain.ParticipantID, cmd Command)) (cancel func())

	OnJoined(fn func()) (cancel func())
	OnLeft(fn func()) (cancel func())
	OnParticipantJoined(fn func(id domain.ParticipantID, displayName string)) (cancel func())
	OnParticipantLeft(fn func(id domain.ParticipantID)) (cancel func())
	OnTrackAdded(fn func(t Track)) (cancel func())
	OnTrackRemoved(fn func(t Track)) (cancel func())
	OnTrackMuteChanged(fn func(t Track)) (cancel func())
	OnError(fn func(err error)) (cancel func())
	OnMessage(fn func(id domain.ParticipantID, text string, at time.Time)) (cancel func())
}
