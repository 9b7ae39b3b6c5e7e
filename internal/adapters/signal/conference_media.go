package signal

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/adapters/rtc"
	"github.com/dkeye/ScreenShare/internal/core"
)

// AddTrack publishes t and renegotiates with the server. A track that is
// already published fails with core.ErrTrackAlreadyAdded.
func (c *Conference) AddTrack(ctx context.Context, t core.Track) error {
	c.negotiate.Lock()
	defer c.negotiate.Unlock()

	pub, err := c.publisher()
	if err != nil {
		return err
	}
	if err := pub.AddTrack(t); err != nil {
		return err
	}
	offer, err := pub.CreateOffer(ctx)
	if err != nil {
		return err
	}
	return c.client.Send(sdpMsg{Type: msgOffer, SDP: offer.SDP})
}

func (c *Conference) publisher() (*rtc.Publisher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pub != nil {
		return c.pub, nil
	}
	if c.media == nil {
		return nil, rtc.ErrNotReady
	}
	pub, err := c.media.NewPublisher(string(c.name), c.sendCandidate)
	if err != nil {
		return nil, err
	}
	c.pub = pub
	pub.OnClosed(func() { c.publisherClosed(pub) })
	return pub, nil
}

// publisherClosed ends the membership when media fails under a live
// conference. A publisher closed by finish is already detached.
func (c *Conference) publisherClosed(pub *rtc.Publisher) {
	c.mu.Lock()
	current := c.pub == pub && c.joined
	c.mu.Unlock()
	if !current {
		return
	}
	_ = c.client.Send(typed{Type: msgLeave})
	c.finish(false)
	c.emitError(ErrMediaFailed)
}

func (c *Conference) currentPublisher() *rtc.Publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pub
}

func (c *Conference) sendCandidate(ci webrtc.ICECandidateInit) {
	msg := candidateMsg{Type: msgCandidate, Candidate: ci.Candidate}
	if ci.SDPMid != nil {
		msg.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		msg.SDPMLineIndex = *ci.SDPMLineIndex
	}
	if err := c.client.Send(msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("send candidate")
	}
}

func (c *Conference) handleAnswer(data []byte) {
	msg, ok := decode[sdpMsg](data)
	if !ok {
		return
	}
	pub := c.currentPublisher()
	if pub == nil {
		log.Warn().Str("module", "signal").Msg("answer without publisher")
		return
	}
	if err := pub.ApplyAnswer(msg.SDP); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("apply answer")
	}
}

func (c *Conference) handleCandidate(data []byte) {
	msg, ok := decode[candidateMsg](data)
	if !ok {
		return
	}
	pub := c.currentPublisher()
	if pub == nil {
		log.Warn().Str("module", "signal").Msg("candidate without publisher")
		return
	}
	cand := webrtc.ICECandidateInit{Candidate: msg.Candidate}
	if msg.SDPMid != "" {
		cand.SDPMid = &msg.SDPMid
	}
	cand.SDPMLineIndex = &msg.SDPMLineIndex
	if err := pub.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
