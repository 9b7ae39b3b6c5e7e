package membership

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/core/coretest"
	"github.com/dkeye/ScreenShare/internal/domain"
)

func bound(t *testing.T) (*Store, *coretest.Conference) {
	t.Helper()
	s := NewStore(room)
	conf := coretest.NewConference("self")
	r := &Reconciler{Store: s, Post: func(fn func()) { fn() }}
	unbind := r.Bind(conf)
	t.Cleanup(unbind)
	return s, conf
}

func command(t *testing.T, v any) core.Command {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return core.Command{Value: string(b)}
}

func TestJoinLeaveEvents(t *testing.T) {
	s, conf := bound(t)
	conf.EmitParticipantJoined("a", "Ann")
	conf.EmitParticipantJoined("a", "Ann")
	conf.EmitParticipantJoined("b", "")
	assert.Equal(t, 2, s.Count())

	conf.EmitParticipantLeft("a")
	conf.EmitParticipantLeft("a")
	assert.Equal(t, 1, s.Count())
	_, ok := s.Participant("b")
	assert.True(t, ok)
}

func TestRemoteTrackAddedAndRemoved(t *testing.T) {
	s, conf := bound(t)
	conf.EmitParticipantJoined("a", "")

	audio := coretest.NewTrack("a-audio", domain.TrackAudio, "a", false)
	video := coretest.NewTrack("a-video", domain.TrackVideo, "a", false)
	conf.EmitTrackAdded(audio)
	conf.EmitTrackAdded(video)

	p, _ := s.Participant("a")
	require.NotNil(t, p.AudioTrack)
	require.NotNil(t, p.VideoTrack)

	conf.EmitTrackRemoved(video)
	p, _ = s.Participant("a")
	assert.Nil(t, p.VideoTrack)
	assert.NotNil(t, p.AudioTrack)
	require.Eventually(t, video.Disposed, time.Second, 5*time.Millisecond)

	// duplicate removal is harmless
	conf.EmitTrackRemoved(video)
	p, _ = s.Participant("a")
	assert.NotNil(t, p.AudioTrack)
}

func TestLocalTracksAreIgnored(t *testing.T) {
	s, conf := bound(t)
	conf.EmitParticipantJoined("self", "")
	conf.EmitTrackAdded(coretest.NewTrack("mine", domain.TrackDesktop, "self", true))
	p, _ := s.Participant("self")
	assert.Nil(t, p.VideoTrack)
}

func TestTrackBeforeJoinIsAttachedOnJoin(t *testing.T) {
	s, conf := bound(t)
	audio := coretest.NewTrack("late-audio", domain.TrackAudio, "late", false)
	audio.SetMuted(true)
	conf.EmitTrackAdded(audio)
	assert.Equal(t, 0, s.Count())

	conf.EmitParticipantJoined("late", "")
	p, ok := s.Participant("late")
	require.True(t, ok)
	require.NotNil(t, p.AudioTrack)
	assert.True(t, p.Muted)
}

func TestParkedTrackRemovedBeforeJoin(t *testing.T) {
	s, conf := bound(t)
	video := coretest.NewTrack("v", domain.TrackVideo, "late", false)
	conf.EmitTrackAdded(video)
	conf.EmitTrackRemoved(video)
	conf.EmitParticipantJoined("late", "")

	p, _ := s.Participant("late")
	assert.Nil(t, p.VideoTrack)
	require.Eventually(t, video.Disposed, time.Second, 5*time.Millisecond)
}

func TestReparkedTrackReleasesReplaced(t *testing.T) {
	s, conf := bound(t)
	first := coretest.NewTrack("v1", domain.TrackVideo, "late", false)
	second := coretest.NewTrack("v2", domain.TrackVideo, "late", false)
	conf.EmitTrackAdded(first)
	conf.EmitTrackAdded(second)
	// re-announcing the parked track keeps it
	conf.EmitTrackAdded(second)

	require.Eventually(t, first.Disposed, time.Second, 5*time.Millisecond)
	assert.False(t, second.Disposed())

	conf.EmitParticipantJoined("late", "")
	p, _ := s.Participant("late")
	require.NotNil(t, p.VideoTrack)
	assert.Equal(t, "v2", p.VideoTrack.ID())
}

func TestMuteChangedAudioOnly(t *testing.T) {
	s, conf := bound(t)
	conf.EmitParticipantJoined("a", "")
	audio := coretest.NewTrack("au", domain.TrackAudio, "a", false)
	video := coretest.NewTrack("vi", domain.TrackVideo, "a", false)
	conf.EmitTrackAdded(audio)

	video.SetMuted(true)
	conf.EmitTrackMuteChanged(video)
	p, _ := s.Participant("a")
	assert.False(t, p.Muted)

	audio.SetMuted(true)
	conf.EmitTrackMuteChanged(audio)
	p, _ = s.Participant("a")
	assert.True(t, p.Muted)
}

func TestPositionAndLinkCommands(t *testing.T) {
	s, conf := bound(t)
	conf.EmitParticipantJoined("main", "")
	conf.EmitParticipantJoined("screen", "")

	conf.EmitCommand(core.CommandPosition, "main", command(t, PositionPayload{ID: "main", X: 12, Y: 34}))
	conf.EmitCommand(core.CommandLink, "screen", command(t, LinkPayload{ID: "screen", Main: "main"}))
	conf.EmitCommand(core.CommandPosition, "x", core.Command{Value: "{not json"})

	m, _ := s.Participant("main")
	assert.Equal(t, domain.Point{X: 12, Y: 34}, m.Position)
	assert.True(t, m.IsSyncedClient)
	sc, _ := s.Participant("screen")
	assert.Equal(t, domain.ParticipantID("main"), sc.LinkMain)
	assert.False(t, sc.IsSyncedClient)
}

func TestMessageReceivedDefaultsTime(t *testing.T) {
	s, conf := bound(t)
	before := time.Now()
	conf.EmitMessage("a", "hello", time.Time{})
	conf.EmitMessage("b", "later", time.Unix(100, 0))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].Timestamp.Before(before))
	assert.Equal(t, time.Unix(100, 0), msgs[1].Timestamp)
	assert.Equal(t, 2, s.Unread())
}

func TestUnbindStopsReconciliation(t *testing.T) {
	s := NewStore(room)
	conf := coretest.NewConference("self")
	r := &Reconciler{Store: s, Post: func(fn func()) { fn() }}
	unbind := r.Bind(conf)
	unbind()

	conf.EmitParticipantJoined("a", "")
	assert.Equal(t, 0, s.Count())
}
