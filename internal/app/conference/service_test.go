package conference

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/ScreenShare/internal/app/membership"
	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/core/coretest"
	"github.com/dkeye/ScreenShare/internal/core/mocks"
	"github.com/dkeye/ScreenShare/internal/domain"
)

type harness struct {
	t     *testing.T
	ctx   context.Context
	loop  *core.Loop
	rt    *coretest.Runtime
	store *membership.Store
	svc   *Service
}

func newHarness(t *testing.T, kv core.KVStore, opts Options) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	loop := core.NewLoop()
	go func() { _ = loop.Run(ctx) }()

	rt := coretest.NewRuntime()
	store := membership.NewStore(domain.Point{X: 1000, Y: 1000})
	svc := New(ctx, rt, store, kv, loop.Post, opts)
	return &harness{t: t, ctx: ctx, loop: loop, rt: rt, store: store, svc: svc}
}

func (h *harness) do(fn func()) {
	h.t.Helper()
	require.NoError(h.t, h.loop.Do(h.ctx, fn))
}

// join brings the runtime up and waits for the joined level.
func (h *harness) join(id string) *coretest.Conference {
	h.t.Helper()
	h.rt.SetReady(true)
	h.rt.SetConnected(true)
	var err error
	h.do(func() { err = h.svc.Init(id) })
	require.NoError(h.t, err)
	require.Eventually(h.t, h.svc.IsJoined().Value, time.Second, 5*time.Millisecond)
	return h.rt.Conference()
}

func TestInitBeforeConnection(t *testing.T) {
	h := newHarness(t, nil, Options{DefaultName: "lobby"})
	h.rt.SetReady(true)

	var err error
	h.do(func() { err = h.svc.Init("room") })
	require.ErrorIs(t, err, ErrNotInitialized)
	assert.Zero(t, h.rt.Journal.Count("conference.init"))
	assert.Nil(t, h.svc.Conference())
}

func TestInitJoinsAndBindsRoster(t *testing.T) {
	h := newHarness(t, nil, Options{DefaultName: "lobby"})
	conf := h.join("Team-Room")

	assert.Equal(t, domain.ConferenceName("team-room"), conf.Name)
	assert.Equal(t, domain.ConferenceName("team-room"), h.svc.Name())
	assert.Equal(t, domain.ParticipantID("self"), h.svc.MyUserID())
	assert.Equal(t, []string{"conference.init", "conference.join"}, h.rt.Journal.Entries())

	conf.EmitParticipantJoined("a", "Ann")
	require.Eventually(t, func() bool { return h.store.Count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestResolveName(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		id   string
		want domain.ConferenceName
	}{
		{name: "lower-cased", opts: Options{DefaultName: "lobby"}, id: "MyRoom", want: "myroom"},
		{name: "empty falls back", opts: Options{DefaultName: "Lobby"}, id: "", want: "lobby"},
		{name: "demo overrides", opts: Options{DefaultName: "lobby", DemoSession: "Demo"}, id: "room", want: "demo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, tt.opts)
			assert.Equal(t, tt.want, h.svc.ResolveName(tt.id))
		})
	}
}

func TestConferenceErrorClearsHandle(t *testing.T) {
	h := newHarness(t, nil, Options{})
	conf := h.join("room")
	conf.EmitParticipantJoined("a", "")
	require.Eventually(t, func() bool { return h.store.Count() == 1 }, time.Second, 5*time.Millisecond)

	errs := make(chan error, 1)
	h.svc.OnError(func(err error) { errs <- err })

	boom := errors.New("conference.connectionError")
	conf.EmitError(boom)

	select {
	case got := <-errs:
		assert.ErrorIs(t, got, boom)
	case <-time.After(time.Second):
		t.Fatal("error listener not called")
	}
	var (
		handle core.Conference
		joined bool
	)
	h.do(func() {
		handle = h.svc.Conference()
		joined = h.svc.IsJoined().Value()
	})
	assert.Nil(t, handle)
	assert.False(t, joined)
	assert.ErrorIs(t, h.svc.Err(), boom)
	assert.Zero(t, h.store.Count())

	// handlers are unbound with the handle
	conf.EmitParticipantJoined("b", "")
	h.do(func() {})
	assert.Zero(t, h.store.Count())
}

func TestLeave(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.join("room")

	h.do(h.svc.Leave)
	require.Eventually(t, func() bool { return !h.svc.IsJoined().Value() }, time.Second, 5*time.Millisecond)
	assert.Nil(t, h.svc.Conference())
	assert.Equal(t, 1, h.rt.Journal.Count("conference.leave"))

	// nothing to leave
	h.do(h.svc.Leave)
	assert.Equal(t, 1, h.rt.Journal.Count("conference.leave"))
}

func TestLeaveWhileJoiningDropsHandle(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.rt.AutoJoin = false
	h.rt.SetReady(true)
	h.rt.SetConnected(true)
	var err error
	h.do(func() { err = h.svc.Init("room") })
	require.NoError(t, err)
	conf := h.rt.Conference()

	parked := coretest.NewTrack("v", domain.TrackVideo, "late", false)
	conf.EmitTrackAdded(parked)
	h.do(func() {})

	var handle core.Conference
	h.do(func() {
		h.svc.Leave()
		handle = h.svc.Conference()
	})
	assert.Nil(t, handle)
	require.Eventually(t, parked.Disposed, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.rt.Journal.Count("conference.leave") == 1 }, time.Second, 5*time.Millisecond)

	// a late confirmation of the abandoned join is ignored
	conf.EmitJoined()
	h.do(func() {})
	assert.False(t, h.svc.IsJoined().Value())

	// the parked track does not reappear for a later participant
	h.do(func() { err = h.svc.Init("room") })
	require.NoError(t, err)
	h.rt.Conference().EmitParticipantJoined("late", "")
	h.do(func() {})
	p, ok := h.store.Participant("late")
	require.True(t, ok)
	assert.Nil(t, p.VideoTrack)
}

func TestDisplayNameIsReadOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	kv := mocks.NewMockKVStore(ctrl)
	kv.EXPECT().Get(gomock.Any(), DisplayNameKey).Return("Alice", true, nil).Times(1)

	h := newHarness(t, kv, Options{})
	assert.Equal(t, "Alice", h.svc.DisplayName())

	conf := h.join("room")
	assert.Equal(t, "Alice", conf.DisplayName())
}

func TestDisplayNameFallsBackToPlaceholder(t *testing.T) {
	ctrl := gomock.NewController(t)
	kv := mocks.NewMockKVStore(ctrl)
	kv.EXPECT().Get(gomock.Any(), DisplayNameKey).Return("", false, errors.New("disk gone"))

	h := newHarness(t, kv, Options{})
	assert.Equal(t, domain.DefaultDisplayName, h.svc.DisplayName())
}

func TestSetDisplayName(t *testing.T) {
	ctrl := gomock.NewController(t)
	kv := mocks.NewMockKVStore(ctrl)
	kv.EXPECT().Get(gomock.Any(), DisplayNameKey).Return("", false, nil)

	h := newHarness(t, kv, Options{})
	conf := h.join("room")

	// placeholder names never reach storage
	err := h.svc.SetDisplayName(h.ctx, "Lonely sphere")
	require.ErrorIs(t, err, domain.ErrUsernameDefault)
	require.ErrorIs(t, h.svc.SetDisplayName(h.ctx, "   "), domain.ErrUsernameEmpty)

	kv.EXPECT().Set(gomock.Any(), DisplayNameKey, "Bob").Return(nil)
	require.NoError(t, h.svc.SetDisplayName(h.ctx, "  Bob "))
	assert.Equal(t, "Bob", h.svc.DisplayName())
	assert.Equal(t, "Bob", conf.DisplayName())
}

func TestSendTextMessage(t *testing.T) {
	h := newHarness(t, nil, Options{})
	require.ErrorIs(t, h.svc.SendTextMessage("hi"), ErrNoConference)

	conf := h.join("room")
	require.NoError(t, h.svc.SendTextMessage("hi"))
	assert.Equal(t, []string{"hi"}, conf.Texts())
}

func TestSendPositionRecalculatesVolumes(t *testing.T) {
	h := newHarness(t, nil, Options{})
	conf := h.join("room")
	h.store.AddParticipant("far", "")
	require.NoError(t, h.store.UpdatePosition("far", domain.Point{X: 5000, Y: 5000}))

	require.NoError(t, h.svc.SendPosition(domain.Point{X: 10, Y: 20}))

	p, _ := h.store.Participant("far")
	assert.Zero(t, p.Volume)
	assert.Equal(t, domain.Point{X: 10, Y: 20}, h.svc.LocalPosition())

	cmds := conf.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, core.CommandPosition, cmds[0].Name)
	var got membership.PositionPayload
	require.NoError(t, json.Unmarshal([]byte(cmds[0].Cmd.Value), &got))
	assert.Equal(t, membership.PositionPayload{ID: "self", X: 10, Y: 20}, got)
}

func TestSendLink(t *testing.T) {
	h := newHarness(t, nil, Options{})
	require.ErrorIs(t, h.svc.SendLink("main"), ErrNoConference)

	conf := h.join("room")
	require.NoError(t, h.svc.SendLink("main"))
	cmds := conf.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, core.CommandLink, cmds[0].Name)
	assert.JSONEq(t, `{"id":"self","main":"main"}`, cmds[0].Cmd.Value)
}

func TestPublishLocalTracksOnce(t *testing.T) {
	h := newHarness(t, nil, Options{})
	local := coretest.NewTrack("desktop-1", domain.TrackDesktop, "", true)
	h.store.SetLocalTracks([]core.Track{local})

	// not joined yet
	h.svc.PublishLocalTracks()

	conf := h.join("room")
	h.svc.PublishLocalTracks()
	h.svc.PublishLocalTracks()
	require.Eventually(t, func() bool { return conf.Added() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.rt.Journal.Count("conference.addTrack"))
}
