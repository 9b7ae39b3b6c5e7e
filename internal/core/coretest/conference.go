package coretest

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

// SentCommand is one SendCommand call.
type SentCommand struct {
	Name string
	Cmd  core.Command
}

// Conference is an in-memory core.Conference. Tests drive remote events
// through the Emit* helpers.
type Conference struct {
	Name     domain.ConferenceName
	AutoJoin bool
	journal  *Journal

	mu          sync.Mutex
	self        domain.ParticipantID
	joined      bool
	displayName string
	commands    []SentCommand
	texts       []string
	added       map[string]core.Track

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

func NewConference(self domain.ParticipantID) *Conference {
	return &Conference{
		self:  self,
		added: make(map[string]core.Track),
		cmds:  make(map[string]*core.Listeners[func(domain.ParticipantID, core.Command)]),
	}
}

func (c *Conference) Join() error {
	c.journal.Record("conference.join")
	if c.AutoJoin {
		go c.EmitJoined()
	}
	return nil
}

func (c *Conference) Leave(ctx context.Context) error {
	c.journal.Record("conference.leave")
	go c.EmitLeft()
	return nil
}

func (c *Conference) IsJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

func (c *Conference) MyUserID() domain.ParticipantID { return c.self }

func (c *Conference) SetDisplayName(name string) {
	c.mu.Lock()
	c.displayName = name
	c.mu.Unlock()
}

func (c *Conference) DisplayName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayName
}

func (c *Conference) SendTextMessage(text string) error {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	return nil
}

func (c *Conference) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func (c *Conference) AddTrack(ctx context.Context, t core.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.added[t.ID()]; ok {
		return core.ErrTrackAlreadyAdded
	}
	c.added[t.ID()] = t
	c.journal.Record("conference.addTrack")
	return nil
}

func (c *Conference) Added() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.added)
}

func (c *Conference) SendCommand(name string, cmd core.Command) error {
	c.journal.Record("command." + name)
	c.mu.Lock()
	c.commands = append(c.commands, SentCommand{Name: name, Cmd: cmd})
	c.mu.Unlock()
	return nil
}

func (c *Conference) Commands() []SentCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentCommand(nil), c.commands...)
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

// ParticipantLeftListeners reports how many leave handlers are registered.
func (c *Conference) ParticipantLeftListeners() int { return c.partLeft.Len() }

func (c *Conference) EmitJoined() {
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()
	for _, fn := range c.joinedL.Snapshot() {
		fn()
	}
}

func (c *Conference) EmitLeft() {
	c.mu.Lock()
	c.joined = false
	c.mu.Unlock()
	for _, fn := range c.leftL.Snapshot() {
		fn()
	}
}

func (c *Conference) EmitParticipantJoined(id domain.ParticipantID, name string) {
	for _, fn := range c.partJoined.Snapshot() {
		fn(id, name)
	}
}

func (c *Conference) EmitParticipantLeft(id domain.ParticipantID) {
	for _, fn := range c.partLeft.Snapshot() {
		fn(id)
	}
}

func (c *Conference) EmitTrackAdded(t core.Track) {
	for _, fn := range c.trackAdd.Snapshot() {
		fn(t)
	}
}

func (c *Conference) EmitTrackRemoved(t core.Track) {
	for _, fn := range c.trackRem.Snapshot() {
		fn(t)
	}
}

func (c *Conference) EmitTrackMuteChanged(t core.Track) {
	for _, fn := range c.trackMute.Snapshot() {
		fn(t)
	}
}

func (c *Conference) EmitError(err error) {
	for _, fn := range c.errs.Snapshot() {
		fn(err)
	}
}

func (c *Conference) EmitMessage(id domain.ParticipantID, text string, at time.Time) {
	for _, fn := range c.msgs.Snapshot() {
		fn(id, text, at)
	}
}

func (c *Conference) EmitCommand(name string, from domain.ParticipantID, cmd core.Command) {
	c.cmdMu.Lock()
	l, ok := c.cmds[name]
	c.cmdMu.Unlock()
	if !ok {
		return
	}
	for _, fn := range l.Snapshot() {
		fn(from, cmd)
	}
}
