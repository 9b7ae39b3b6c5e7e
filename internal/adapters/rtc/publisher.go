package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/core"
)

// Publisher sends local tracks to the conference over one PeerConnection.
type Publisher struct {
	pc    *webrtc.PeerConnection
	id    string
	onICE func(webrtc.ICECandidateInit)

	mu       sync.Mutex
	senders  map[string]*webrtc.RTPSender
	onClosed func()
	closed   bool
}

// NewPublisher opens a PeerConnection; id only labels the logs.
func (m *Media) NewPublisher(id string, onICE func(webrtc.ICECandidateInit)) (*Publisher, error) {
	api, _, err := m.state()
	if err != nil {
		return nil, err
	}
	pc, err := api.NewPeerConnection(m.WebRTCConfig())
	if err != nil {
		return nil, err
	}
	p := &Publisher{pc: pc, id: id, onICE: onICE, senders: map[string]*webrtc.RTPSender{}}
	p.start()
	return p, nil
}

func (p *Publisher) start() {
	p.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("conference", p.id).Str("ice_state", s.String()).Msg("ICE state")
	})
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("conference", p.id).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			p.mu.Lock()
			fn := p.onClosed
			p.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	})
	p.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && p.onICE != nil {
			p.onICE(cand.ToJSON())
		}
	})
}

// OnClosed is called once the PeerConnection fails or closes.
func (p *Publisher) OnClosed(fn func()) {
	p.mu.Lock()
	p.onClosed = fn
	p.mu.Unlock()
}

// AddTrack attaches t. Adding the same track twice returns
// core.ErrTrackAlreadyAdded.
func (p *Publisher) AddTrack(t core.Track) error {
	local, ok := t.(interface{ TrackLocal() webrtc.TrackLocal })
	if !ok || t.Disposed() {
		return ErrNotPublishable
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.senders[t.ID()]; ok {
		return core.ErrTrackAlreadyAdded
	}
	sender, err := p.pc.AddTrack(local.TrackLocal())
	if err != nil {
		return err
	}
	p.senders[t.ID()] = sender
	go drainRTCP(sender)
	log.Info().Str("module", "webrtc").Str("conference", p.id).Str("track", t.ID()).Msg("track added")
	return nil
}

// drainRTCP keeps the interceptors running until the sender stops.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// CreateOffer sets and returns a local offer with every candidate gathered.
func (p *Publisher) CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.pc.LocalDescription(), nil
}

func (p *Publisher) ApplyAnswer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (p *Publisher) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(ci)
}

func (p *Publisher) LocalDescription() *webrtc.SessionDescription {
	return p.pc.LocalDescription()
}

func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	if err := p.pc.Close(); err != nil && !errors.Is(err, webrtc.ErrConnectionClosed) {
		log.Error().Err(err).Str("module", "webrtc").Str("conference", p.id).Msg("close error")
		return
	}
	log.Info().Str("module", "webrtc").Str("conference", p.id).Msg("closed")
}
