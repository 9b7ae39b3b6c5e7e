package core

import (
	"context"
	"errors"

	"github.com/dkeye/ScreenShare/internal/domain"
)

// ErrTrackAlreadyAdded is returned when a track is published twice. It is
// an expected race, callers ignore it.
var ErrTrackAlreadyAdded = errors.New("track already added")

// Track is a handle to a captured or remote media stream.
// A track belongs to exactly one participant and is either local or remote.
type Track interface {
	ID() string
	Kind() domain.TrackKind
	// ParticipantID is the owner as reported by the track metadata.
	ParticipantID() domain.ParticipantID
	IsLocal() bool
	IsMuted() bool
	Disposed() bool
	// Dispose releases the underlying media. Disposing twice is not an error.
	Dispose(ctx context.Context) error
	// OnStopped registers fn for the "track stopped" signal (user ended capture,
	// device went away). The returned func removes the listener.
	OnStopped(fn func()) (cancel func())
}

// TrackSnapshot is a read-only view of a track for APIs.
type TrackSnapshot struct {
	ID       string           `json:"id"`
	Kind     domain.TrackKind `json:"kind"`
	Muted    bool             `json:"muted"`
	Disposed bool             `json:"disposed"`
}

// SnapshotTrack returns nil for a nil track.
func SnapshotTrack(t Track) *TrackSnapshot {
	if t == nil {
		return nil
	}
	return &TrackSnapshot{ID: t.ID(), Kind: t.Kind(), Muted: t.IsMuted(), Disposed: t.Disposed()}
}
