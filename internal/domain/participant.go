package domain

import "time"

// ParticipantID is assigned by the signaling layer and stable for one membership.
type ParticipantID string

// Point is a position in the shared virtual room.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type TrackKind string

const (
	TrackAudio   TrackKind = "audio"
	TrackVideo   TrackKind = "video"
	TrackDesktop TrackKind = "desktop"
)

// IsVideo reports whether the kind renders as a picture (camera or desktop).
func (k TrackKind) IsVideo() bool { return k == TrackVideo || k == TrackDesktop }

// ChatMessage is append-only and ordered by arrival.
type ChatMessage struct {
	ID        string        `json:"id"`
	SenderID  ParticipantID `json:"user"`
	Text      string        `json:"message"`
	Timestamp time.Time     `json:"time"`
}
