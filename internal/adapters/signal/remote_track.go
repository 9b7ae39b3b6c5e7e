package signal

import (
	"context"
	"sync"

	"github.com/dkeye/ScreenShare/internal/domain"
)

// RemoteTrack is a track another participant publishes, as announced by
// the signaling server.
type RemoteTrack struct {
	id    string
	kind  domain.TrackKind
	owner domain.ParticipantID

	mu       sync.Mutex
	muted    bool
	disposed bool
}

func newRemoteTrack(info trackInfo) *RemoteTrack {
	return &RemoteTrack{id: info.ID, kind: info.Kind, owner: info.User, muted: info.Muted}
}

func (t *RemoteTrack) ID() string                          { return t.id }
func (t *RemoteTrack) Kind() domain.TrackKind              { return t.kind }
func (t *RemoteTrack) ParticipantID() domain.ParticipantID { return t.owner }
func (t *RemoteTrack) IsLocal() bool                       { return false }

func (t *RemoteTrack) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *RemoteTrack) setMuted(v bool) {
	t.mu.Lock()
	t.muted = v
	t.mu.Unlock()
}

func (t *RemoteTrack) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

func (t *RemoteTrack) Dispose(context.Context) error {
	t.mu.Lock()
	t.disposed = true
	t.mu.Unlock()
	return nil
}

// OnStopped never fires: remote tracks end through track_removed.
func (t *RemoteTrack) OnStopped(func()) func() { return func() {} }
