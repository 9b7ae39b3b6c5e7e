package signal

import (
	"context"

	"github.com/dkeye/ScreenShare/internal/adapters/rtc"
	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

// Runtime joins the signaling client and the media runtime into the
// collaborator the session machines drive.
type Runtime struct {
	Client  *Client
	Media   *rtc.Media
	Limiter *CommandRateLimiter
}

var _ core.Runtime = (*Runtime)(nil)

func NewRuntime(client *Client, media *rtc.Media, limiter *CommandRateLimiter) *Runtime {
	return &Runtime{Client: client, Media: media, Limiter: limiter}
}

func (r *Runtime) Init(ctx context.Context) error { return r.Media.Init(ctx) }
func (r *Runtime) Ready() core.Signal             { return r.Media.Ready() }

func (r *Runtime) Connect(ctx context.Context, id string) error { return r.Client.Connect(ctx, id) }
func (r *Runtime) Connected() core.Signal                       { return r.Client.Connected() }

func (r *Runtime) CreateCaptureTracks(ctx context.Context, kind domain.TrackKind) ([]core.Track, error) {
	return r.Media.CreateCaptureTracks(ctx, kind)
}

// InitConference requires an open signaling connection.
func (r *Runtime) InitConference(name domain.ConferenceName, opts core.ConferenceOptions) (core.Conference, error) {
	if !r.Client.Connected().Value() {
		return nil, ErrNotConnected
	}
	return newConference(r.Client, r.Media, name, opts, r.Limiter), nil
}
