package signal

import (
	"time"

	"github.com/dkeye/ScreenShare/internal/domain"
)

// Message types of the signaling protocol.
const (
	msgJoin          = "join"
	msgLeave         = "leave"
	msgLeft          = "left"
	msgRename        = "rename"
	msgRoomState     = "room_state"
	msgMemberJoined  = "member_joined"
	msgMemberLeft    = "member_left"
	msgMemberUpdated = "member_updated"
	msgCommand       = "command"
	msgChat          = "chat"
	msgTrackAdded    = "track_added"
	msgTrackRemoved  = "track_removed"
	msgTrackMuted    = "track_muted"
	msgOffer         = "offer"
	msgAnswer        = "answer"
	msgCandidate     = "candidate"
	msgError         = "error"
	msgPing          = "ping"
	msgPong          = "pong"
)

type typed struct {
	Type string `json:"type"`
}

type joinMsg struct {
	Type       string `json:"type"`
	Room       string `json:"room"`
	Name       string `json:"name,omitempty"`
	AudioMuted bool   `json:"audio_muted,omitempty"`
	VideoMuted bool   `json:"video_muted,omitempty"`
}

type renameMsg struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type member struct {
	ID       domain.ParticipantID `json:"id"`
	Username string               `json:"username"`
}

type trackInfo struct {
	ID    string               `json:"id"`
	Kind  domain.TrackKind     `json:"kind"`
	User  domain.ParticipantID `json:"user"`
	Muted bool                 `json:"muted"`
}

type roomStateMsg struct {
	Type    string               `json:"type"`
	Room    string               `json:"room"`
	Self    domain.ParticipantID `json:"self"`
	Members []member             `json:"members"`
	Tracks  []trackInfo          `json:"tracks"`
}

type memberMsg struct {
	Type string `json:"type"`
	User member `json:"user"`
}

type commandMsg struct {
	Type  string               `json:"type"`
	From  domain.ParticipantID `json:"from,omitempty"`
	Name  string               `json:"name"`
	Value string               `json:"value"`
}

type chatMsg struct {
	Type    string               `json:"type"`
	User    domain.ParticipantID `json:"user,omitempty"`
	Message string               `json:"message"`
	Time    time.Time            `json:"time"`
}

type trackMsg struct {
	Type  string    `json:"type"`
	Track trackInfo `json:"track"`
}

type sdpMsg struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateMsg struct {
	Type          string `json:"type"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
