package core

import (
	"context"

	"github.com/dkeye/ScreenShare/internal/domain"
)

// Runtime is the media/signaling collaborator consumed by the session machines.
// Long running capabilities report completion through level signals.
type Runtime interface {
	// Init bootstraps the runtime; Ready turns true once it is usable.
	Init(ctx context.Context) error
	Ready() Signal

	// Connect starts connecting to the signaling server; Connected mirrors
	// the connectivity reported by the transport.
	Connect(ctx context.Context, id string) error
	Connected() Signal

	// CreateCaptureTracks blocks until capture succeeded or failed.
	CreateCaptureTracks(ctx context.Context, kind domain.TrackKind) ([]Track, error)

	InitConference(name domain.ConferenceName, opts ConferenceOptions) (Conference, error)
}

type ConferenceOptions struct {
	StartAudioMuted bool `json:"startAudioMuted"`
	StartVideoMuted bool `json:"startVideoMuted"`
}
