package membership

import (
	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

// Participant is one roster entry. Values are copied on every update so a
// published Participant never changes underneath a reader.
type Participant struct {
	ID             domain.ParticipantID
	DisplayName    string
	Muted          bool
	Volume         float64
	Position       domain.Point
	AudioTrack     core.Track
	VideoTrack     core.Track
	LinkMain       domain.ParticipantID
	Zoomed         bool
	IsSyncedClient bool
}

// ParticipantDTO is a read-only view for APIs (no track handles).
type ParticipantDTO struct {
	ID             domain.ParticipantID `json:"id"`
	DisplayName    string               `json:"displayName,omitempty"`
	Muted          bool                 `json:"mute"`
	Volume         float64              `json:"volume"`
	Position       domain.Point         `json:"pos"`
	Audio          *core.TrackSnapshot  `json:"audio,omitempty"`
	Video          *core.TrackSnapshot  `json:"video,omitempty"`
	LinkMain       domain.ParticipantID `json:"linkMain,omitempty"`
	Zoomed         bool                 `json:"zoom"`
	IsSyncedClient bool                 `json:"syncedClient"`
}

func (p Participant) DTO() ParticipantDTO {
	return ParticipantDTO{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		Muted:          p.Muted,
		Volume:         p.Volume,
		Position:       p.Position,
		Audio:          core.SnapshotTrack(p.AudioTrack),
		Video:          core.SnapshotTrack(p.VideoTrack),
		LinkMain:       p.LinkMain,
		Zoomed:         p.Zoomed,
		IsSyncedClient: p.IsSyncedClient,
	}
}
