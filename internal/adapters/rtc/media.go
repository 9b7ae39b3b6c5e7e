// Package rtc publishes local capture tracks over pion PeerConnections.
package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

var (
	ErrNotReady           = errors.New("media runtime is not initialised")
	ErrCaptureUnsupported = errors.New("desktop capture is not supported on this platform")
	ErrNotPublishable     = errors.New("track cannot be published")
)

type Config struct {
	// ICEServers defaults to a public STUN server when nil; an empty
	// list disables ICE servers.
	ICEServers []string
	// VideoBitRate is the target VP8 bit rate of desktop capture.
	VideoBitRate int
}

// Media owns the pion API shared by every publisher and the desktop capture.
type Media struct {
	cfg   Config
	ready *core.Level

	mu       sync.Mutex
	api      *webrtc.API
	selector *mediadevices.CodecSelector
}

func NewMedia(cfg Config) *Media {
	if cfg.VideoBitRate <= 0 {
		cfg.VideoBitRate = 1_500_000
	}
	return &Media{cfg: cfg, ready: core.NewLevel(false)}
}

func (m *Media) WebRTCConfig() webrtc.Configuration {
	urls := m.cfg.ICEServers
	if urls == nil {
		urls = []string{"stun:stun.l.google.com:19302"}
	}
	if len(urls) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: urls}},
	}
}

// Init builds the media engine once and raises Ready.
func (m *Media) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.api != nil {
		return nil
	}

	mediaEngine := &webrtc.MediaEngine{}
	selector, err := populateCodecs(mediaEngine, m.cfg.VideoBitRate)
	if err != nil {
		return err
	}
	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return err
	}
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	m.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)
	m.selector = selector
	log.Info().Str("module", "webrtc").Bool("capture", selector != nil).Msg("media runtime ready")
	m.ready.Set(true)
	return nil
}

func (m *Media) Ready() core.Signal { return m.ready }

func (m *Media) state() (*webrtc.API, *mediadevices.CodecSelector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.api == nil {
		return nil, nil, ErrNotReady
	}
	return m.api, m.selector, nil
}

// CreateCaptureTracks opens the desktop and returns its video tracks. It
// blocks until the capture is open.
func (m *Media) CreateCaptureTracks(ctx context.Context, kind domain.TrackKind) ([]core.Track, error) {
	_, selector, err := m.state()
	if err != nil {
		return nil, err
	}
	if selector == nil {
		return nil, ErrCaptureUnsupported
	}
	type result struct {
		tracks []mediadevices.Track
		err    error
	}
	done := make(chan result, 1)
	go func() {
		tracks, err := captureDisplay(selector)
		done <- result{tracks, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// release whatever the capture opens after we gave up
		go func() {
			if late := <-done; late.err == nil {
				for _, t := range late.tracks {
					_ = t.Close()
				}
			}
		}()
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	out := make([]core.Track, 0, len(res.tracks))
	for _, t := range res.tracks {
		out = append(out, newLocalTrack(kind, t))
	}
	log.Info().Str("module", "webrtc").Int("tracks", len(out)).Msg("desktop capture opened")
	return out, nil
}
