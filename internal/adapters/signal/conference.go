package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/adapters/rtc"
	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

var (
	ErrConference     = errors.New("conference error")
	ErrConnectionLost = errors.New("signaling connection lost")
	ErrRateLimited    = errors.New("command rate limited")
	ErrMediaFailed    = errors.New("media connection failed")
)

// Conference is one conference membership carried over the signaling
// client. Media is published through an rtc.Publisher created on the first
// AddTrack.
type Conference struct {
	client  *Client
	media   *rtc.Media
	name    domain.ConferenceName
	opts    core.ConferenceOptions
	limiter *CommandRateLimiter

	mu          sync.Mutex
	self        domain.ParticipantID
	joined      bool
	joining     bool
	displayName string
	pub         *rtc.Publisher
	remote      map[string]*RemoteTrack
	leaveAck    chan struct{}
	unbind      func()

	negotiate sync.Mutex

	joinedL    core.Listeners[func()]
	leftL      core.Listeners[func()]
	partJoined core.Listeners[func(domain.ParticipantID, string)]
	partLeft   core.Listeners[func(domain.ParticipantID)]
	trackAdd   core.Listeners[func(core.Track)]
	trackRem   core.Listeners[func(core.Track)]
	trackMute  core.Listeners[func(core.Track)]
	errs       core.Listeners[func(error)]
	msgs       core.Listeners[func(domain.ParticipantID, string, time.Time)]

	cmdMu sync.Mutex
	cmds  map[string]*core.Listeners[func(domain.ParticipantID, core.Command)]
}

var _ core.Conference = (*Conference)(nil)

func newConference(client *Client, media *rtc.Media, name domain.ConferenceName, opts core.ConferenceOptions, limiter *CommandRateLimiter) *Conference {
	return &Conference{
		client:  client,
		media:   media,
		name:    name,
		opts:    opts,
		limiter: limiter,
		remote:  make(map[string]*RemoteTrack),
		cmds:    make(map[string]*core.Listeners[func(domain.ParticipantID, core.Command)]),
	}
}

// Join binds the protocol handlers and asks the server to join. The
// outcome arrives as OnJoined or OnError.
func (c *Conference) Join() error {
	c.mu.Lock()
	bound := c.unbind != nil
	c.mu.Unlock()
	if !bound {
		unbind := c.bind()
		c.mu.Lock()
		c.unbind = unbind
		c.mu.Unlock()
	}

	c.mu.Lock()
	msg := joinMsg{
		Type:       msgJoin,
		Room:       string(c.name),
		Name:       c.displayName,
		AudioMuted: c.opts.StartAudioMuted,
		VideoMuted: c.opts.StartVideoMuted,
	}
	c.mu.Unlock()
	log.Info().Str("module", "signal").Str("room", string(c.name)).Msg("join")
	if err := c.client.Send(msg); err != nil {
		c.finish(false)
		return err
	}
	c.mu.Lock()
	c.joining = !c.joined
	c.mu.Unlock()
	return nil
}

func (c *Conference) bind() func() {
	on := func(typ string, fn func([]byte)) func() { return c.client.On(typ, fn) }
	cancels := []func(){
		on(msgRoomState, c.handleRoomState),
		on(msgLeft, c.handleLeft),
		on(msgMemberJoined, c.handleMemberJoined),
		on(msgMemberUpdated, c.handleMemberJoined),
		on(msgMemberLeft, c.handleMemberLeft),
		on(msgCommand, c.handleCommand),
		on(msgChat, c.handleChat),
		on(msgTrackAdded, c.handleTrackAdded),
		on(msgTrackRemoved, c.handleTrackRemoved),
		on(msgTrackMuted, c.handleTrackMuted),
		on(msgAnswer, c.handleAnswer),
		on(msgCandidate, c.handleCandidate),
		on(msgError, c.handleError),
		c.client.Connected().Subscribe(func(up bool) {
			if !up {
				c.connectionLost()
			}
		}),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Leave asks the server to leave and waits for the acknowledgement.
// The membership is released even when the server cannot be reached.
func (c *Conference) Leave(ctx context.Context) error {
	ack := make(chan struct{})
	c.mu.Lock()
	c.leaveAck = ack
	c.mu.Unlock()

	err := c.client.Send(typed{Type: msgLeave})
	if err == nil {
		select {
		case <-ack:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	c.finish(true)
	return err
}

// finish drops the publisher, the remote tracks and the handlers.
func (c *Conference) finish(emitLeft bool) {
	c.mu.Lock()
	wasJoined := c.joined
	c.joined = false
	c.joining = false
	pub := c.pub
	c.pub = nil
	unbind := c.unbind
	c.unbind = nil
	c.remote = make(map[string]*RemoteTrack)
	c.leaveAck = nil
	c.mu.Unlock()

	if pub != nil {
		pub.Close()
	}
	if unbind != nil {
		unbind()
	}
	if wasJoined && emitLeft {
		log.Info().Str("module", "signal").Str("room", string(c.name)).Msg("left")
		for _, fn := range c.leftL.Snapshot() {
			fn()
		}
	}
}

// connectionLost fails a joined conference or a join still waiting for
// the room state.
func (c *Conference) connectionLost() {
	c.mu.Lock()
	active := c.joined || c.joining
	c.mu.Unlock()
	if !active {
		return
	}
	c.finish(false)
	c.emitError(ErrConnectionLost)
}

func (c *Conference) emitError(err error) {
	for _, fn := range c.errs.Snapshot() {
		fn(err)
	}
}

func (c *Conference) IsJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

func (c *Conference) MyUserID() domain.ParticipantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Conference) SetDisplayName(name string) {
	c.mu.Lock()
	c.displayName = name
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		return
	}
	if err := c.client.Send(renameMsg{Type: msgRename, Name: name}); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("rename")
	}
}

func (c *Conference) SendTextMessage(text string) error {
	return c.client.Send(chatMsg{Type: msgChat, Message: text, Time: time.Now()})
}

// SendCommand broadcasts a keyed command. Commands over the rate limit are
// dropped with ErrRateLimited.
func (c *Conference) SendCommand(name string, cmd core.Command) error {
	if !c.limiter.Allow(name) {
		return ErrRateLimited
	}
	return c.client.Send(commandMsg{Type: msgCommand, Name: name, Value: cmd.Value})
}

func (c *Conference) AddCommandListener(name string, fn func(domain.ParticipantID, core.Command)) func() {
	c.cmdMu.Lock()
	l, ok := c.cmds[name]
	if !ok {
		l = &core.Listeners[func(domain.ParticipantID, core.Command)]{}
		c.cmds[name] = l
	}
	c.cmdMu.Unlock()
	return l.Add(fn)
}

func (c *Conference) OnJoined(fn func()) func() { return c.joinedL.Add(fn) }
func (c *Conference) OnLeft(fn func()) func()   { return c.leftL.Add(fn) }
func (c *Conference) OnParticipantJoined(fn func(domain.ParticipantID, string)) func() {
	return c.partJoined.Add(fn)
}
func (c *Conference) OnParticipantLeft(fn func(domain.ParticipantID)) func() {
	return c.partLeft.Add(fn)
}
func (c *Conference) OnTrackAdded(fn func(core.Track)) func()       { return c.trackAdd.Add(fn) }
func (c *Conference) OnTrackRemoved(fn func(core.Track)) func()     { return c.trackRem.Add(fn) }
func (c *Conference) OnTrackMuteChanged(fn func(core.Track)) func() { return c.trackMute.Add(fn) }
func (c *Conference) OnError(fn func(error)) func()                 { return c.errs.Add(fn) }
func (c *Conference) OnMessage(fn func(domain.ParticipantID, string, time.Time)) func() {
	return c.msgs.Add(fn)
}

func decode[T any](data []byte) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad payload")
		return v, false
	}
	return v, true
}

func (c *Conference) handleRoomState(data []byte) {
	msg, ok := decode[roomStateMsg](data)
	if !ok {
		return
	}
	c.mu.Lock()
	c.self = msg.Self
	c.joined = true
	c.joining = false
	c.mu.Unlock()
	log.Info().Str("module", "signal").Str("room", msg.Room).Str("self", string(msg.Self)).Int("members", len(msg.Members)).Msg("joined")

	for _, fn := range c.joinedL.Snapshot() {
		fn()
	}
	for _, m := range msg.Members {
		if m.ID != msg.Self {
			c.emitParticipantJoined(m)
		}
	}
	for _, info := range msg.Tracks {
		c.addRemote(info)
	}
}

func (c *Conference) handleLeft([]byte) {
	c.mu.Lock()
	ack := c.leaveAck
	c.leaveAck = nil
	c.mu.Unlock()
	if ack != nil {
		close(ack)
		return
	}
	// removed by the server
	c.finish(true)
}

func (c *Conference) handleMemberJoined(data []byte) {
	if msg, ok := decode[memberMsg](data); ok && msg.User.ID != c.MyUserID() {
		c.emitParticipantJoined(msg.User)
	}
}

func (c *Conference) emitParticipantJoined(m member) {
	for _, fn := range c.partJoined.Snapshot() {
		fn(m.ID, m.Username)
	}
}

// handleMemberLeft removes the member's tracks before the member.
func (c *Conference) handleMemberLeft(data []byte) {
	msg, ok := decode[memberMsg](data)
	if !ok {
		return
	}
	c.mu.Lock()
	var gone []*RemoteTrack
	for id, t := range c.remote {
		if t.owner == msg.User.ID {
			gone = append(gone, t)
			delete(c.remote, id)
		}
	}
	c.mu.Unlock()
	for _, t := range gone {
		c.emitTrack(&c.trackRem, t)
	}
	for _, fn := range c.partLeft.Snapshot() {
		fn(msg.User.ID)
	}
}

func (c *Conference) handleCommand(data []byte) {
	msg, ok := decode[commandMsg](data)
	if !ok || msg.From == c.MyUserID() {
		return
	}
	c.cmdMu.Lock()
	l, ok := c.cmds[msg.Name]
	c.cmdMu.Unlock()
	if !ok {
		return
	}
	for _, fn := range l.Snapshot() {
		fn(msg.From, core.Command{Value: msg.Value})
	}
}

func (c *Conference) handleChat(data []byte) {
	msg, ok := decode[chatMsg](data)
	if !ok {
		return
	}
	for _, fn := range c.msgs.Snapshot() {
		fn(msg.User, msg.Message, msg.Time)
	}
}

func (c *Conference) handleTrackAdded(data []byte) {
	if msg, ok := decode[trackMsg](data); ok {
		c.addRemote(msg.Track)
	}
}

func (c *Conference) addRemote(info trackInfo) {
	if info.User == c.MyUserID() {
		return
	}
	t := newRemoteTrack(info)
	c.mu.Lock()
	c.remote[t.id] = t
	c.mu.Unlock()
	c.emitTrack(&c.trackAdd, t)
}

func (c *Conference) handleTrackRemoved(data []byte) {
	msg, ok := decode[trackMsg](data)
	if !ok {
		return
	}
	c.mu.Lock()
	t, found := c.remote[msg.Track.ID]
	delete(c.remote, msg.Track.ID)
	c.mu.Unlock()
	if found {
		c.emitTrack(&c.trackRem, t)
	}
}

func (c *Conference) handleTrackMuted(data []byte) {
	msg, ok := decode[trackMsg](data)
	if !ok {
		return
	}
	c.mu.Lock()
	t, found := c.remote[msg.Track.ID]
	c.mu.Unlock()
	if !found {
		return
	}
	t.setMuted(msg.Track.Muted)
	c.emitTrack(&c.trackMute, t)
}

func (c *Conference) emitTrack(l *core.Listeners[func(core.Track)], t core.Track) {
	for _, fn := range l.Snapshot() {
		fn(t)
	}
}

func (c *Conference) handleError(data []byte) {
	msg, ok := decode[errorMsg](data)
	if !ok {
		return
	}
	c.emitError(fmt.Errorf("%w: %s", ErrConference, msg.Error))
}
