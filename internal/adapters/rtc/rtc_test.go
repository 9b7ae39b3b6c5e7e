package rtc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/core/coretest"
	"github.com/dkeye/ScreenShare/internal/domain"
)

type sampleSource struct {
	*webrtc.TrackLocalStaticSample
	ended  func(error)
	closes atomic.Int32
}

func newSampleSource(t *testing.T, id string) *sampleSource {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, "desktop")
	require.NoError(t, err)
	return &sampleSource{TrackLocalStaticSample: track}
}

func (s *sampleSource) OnEnded(fn func(error)) { s.ended = fn }

func (s *sampleSource) Close() error {
	s.closes.Add(1)
	return nil
}

func readyMedia(t *testing.T) *Media {
	t.Helper()
	m := NewMedia(Config{ICEServers: []string{}})
	require.NoError(t, m.Init(context.Background()))
	require.True(t, m.Ready().Value())
	return m
}

func TestLocalTrackLifecycle(t *testing.T) {
	src := newSampleSource(t, "screen")
	track := NewLocalTrack(domain.TrackDesktop, src)
	assert.Equal(t, "screen", track.ID())
	assert.True(t, track.IsLocal())
	assert.Empty(t, track.ParticipantID())

	stops := 0
	track.OnStopped(func() { stops++ })
	src.ended(errors.New("window closed"))
	assert.Equal(t, 1, stops)

	require.NoError(t, track.Dispose(context.Background()))
	require.NoError(t, track.Dispose(context.Background()))
	assert.True(t, track.Disposed())
	assert.Equal(t, int32(1), src.closes.Load())

	// closing the capture ourselves is not a stop
	src.ended(nil)
	assert.Equal(t, 1, stops)
}

func TestCaptureBeforeInit(t *testing.T) {
	m := NewMedia(Config{})
	assert.False(t, m.Ready().Value())
	_, err := m.CreateCaptureTracks(context.Background(), domain.TrackDesktop)
	require.ErrorIs(t, err, ErrNotReady)
	_, err = m.NewPublisher("room", nil)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestInitIsIdempotent(t *testing.T) {
	m := readyMedia(t)
	require.NoError(t, m.Init(context.Background()))
}

func TestWebRTCConfig(t *testing.T) {
	assert.Len(t, NewMedia(Config{}).WebRTCConfig().ICEServers, 1)
	assert.Empty(t, NewMedia(Config{ICEServers: []string{}}).WebRTCConfig().ICEServers)
	cfg := NewMedia(Config{ICEServers: []string{"stun:a", "turn:b"}}).WebRTCConfig()
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:a", "turn:b"}, cfg.ICEServers[0].URLs)
}

func TestPublisherAddTrack(t *testing.T) {
	pub, err := readyMedia(t).NewPublisher("room", nil)
	require.NoError(t, err)
	defer pub.Close()

	track := NewLocalTrack(domain.TrackDesktop, newSampleSource(t, "screen"))
	require.NoError(t, pub.AddTrack(track))
	require.ErrorIs(t, pub.AddTrack(track), core.ErrTrackAlreadyAdded)

	remote := coretest.NewTrack("remote", domain.TrackVideo, "a", false)
	require.ErrorIs(t, pub.AddTrack(remote), ErrNotPublishable)

	gone := NewLocalTrack(domain.TrackDesktop, newSampleSource(t, "gone"))
	require.NoError(t, gone.Dispose(context.Background()))
	require.ErrorIs(t, pub.AddTrack(gone), ErrNotPublishable)
}

func TestPublisherOfferAnswer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub, err := readyMedia(t).NewPublisher("room", nil)
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.AddTrack(NewLocalTrack(domain.TrackDesktop, newSampleSource(t, "screen"))))

	offer, err := pub.CreateOffer(ctx)
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "VP8")

	sfu, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer func() { _ = sfu.Close() }()
	require.NoError(t, sfu.SetRemoteDescription(*offer))
	answer, err := sfu.CreateAnswer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(sfu)
	require.NoError(t, sfu.SetLocalDescription(answer))
	<-gathered

	require.NoError(t, pub.ApplyAnswer(sfu.LocalDescription().SDP))
}

func TestPublisherCloseTwice(t *testing.T) {
	pub, err := readyMedia(t).NewPublisher("room", nil)
	require.NoError(t, err)
	pub.Close()
	pub.Close()
}
