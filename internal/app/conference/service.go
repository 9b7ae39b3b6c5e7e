// Package conference owns the lifecycle of the conference handle: init and
// join, leave, the joined level, conference errors, the persisted display
// name and the outbound chat/position/link commands.
package conference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/app/membership"
	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

// DisplayNameKey is the storage key of the last used display name.
const DisplayNameKey = "jitsiUsername"

var (
	ErrNotInitialized = errors.New("server connection has not been initialized")
	ErrNoConference   = errors.New("no active conference")
)

type Options struct {
	// DefaultName is used when the requested conference id is empty.
	DefaultName string
	// DemoSession, when set, overrides every requested conference id.
	DemoSession string
	Conference  core.ConferenceOptions
	// LeaveTimeout bounds leave and track publishing calls.
	LeaveTimeout time.Duration
}

// Service is driven from the session loop; exported getters are safe from
// any goroutine.
type Service struct {
	rt    core.Runtime
	store *membership.Store
	kv    core.KVStore
	post  func(func())
	opts  Options

	joined *core.Level
	errs   core.Listeners[func(error)]

	mu          sync.RWMutex
	conf        core.Conference
	name        domain.ConferenceName
	displayName string
	lastErr     error
	localPos    domain.Point
	unbind      func()
	published   map[string]bool
}

// New reads the persisted display name once, falling back to the default.
func New(ctx context.Context, rt core.Runtime, store *membership.Store, kv core.KVStore, post func(func()), opts Options) *Service {
	s := &Service{
		rt:          rt,
		store:       store,
		kv:          kv,
		post:        post,
		opts:        opts,
		joined:      core.NewLevel(false),
		displayName: domain.DefaultDisplayName,
		name:        domain.ConferenceName(strings.ToLower(opts.DefaultName)),
		published:   map[string]bool{},
	}
	if kv != nil {
		name, ok, err := kv.Get(ctx, DisplayNameKey)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("module", "app.conference").Msg("cannot read display name")
		case ok:
			s.displayName = name
		}
	}
	return s
}

// ResolveName lower-cases id and applies the default and demo overrides.
func (s *Service) ResolveName(id string) domain.ConferenceName {
	if s.opts.DemoSession != "" {
		return domain.ConferenceName(strings.ToLower(s.opts.DemoSession))
	}
	if id == "" {
		return domain.ConferenceName(strings.ToLower(s.opts.DefaultName))
	}
	return domain.ConferenceName(strings.ToLower(id))
}

// Init creates the conference handle, binds the roster handlers and requests
// to join. Calling it before the connection and runtime are ready is a
// precondition violation.
func (s *Service) Init(id string) error {
	name := s.ResolveName(id)
	if !s.rt.Connected().Value() || !s.rt.Ready().Value() {
		return ErrNotInitialized
	}
	if prev := s.Conference(); prev != nil {
		s.drop(prev)
	}
	conf, err := s.rt.InitConference(name, s.opts.Conference)
	if err != nil {
		return fmt.Errorf("init conference %q: %w", name, err)
	}

	rec := &membership.Reconciler{Store: s.store, Post: s.post, DisposeTimeout: s.opts.LeaveTimeout}
	cancels := []func(){
		rec.Bind(conf),
		conf.OnJoined(func() { s.post(func() { s.onJoined(conf) }) }),
		conf.OnLeft(func() { s.post(func() { s.onLeft(conf) }) }),
		conf.OnError(func(err error) { s.post(func() { s.onError(conf, err) }) }),
	}

	s.mu.Lock()
	s.conf = conf
	s.name = name
	s.lastErr = nil
	s.published = map[string]bool{}
	s.unbind = func() {
		for _, c := range cancels {
			c()
		}
	}
	displayName := s.displayName
	s.mu.Unlock()

	conf.SetDisplayName(displayName)
	if err := conf.Join(); err != nil {
		s.drop(conf)
		return fmt.Errorf("join conference %q: %w", name, err)
	}
	log.Info().Str("module", "app.conference").Str("conference", string(name)).Msg("joining conference")
	return nil
}

// Leave requests to leave when a conference is active. The joined level
// drops once the collaborator confirms. A conference still joining is
// dropped at once, so a late join confirmation is ignored.
func (s *Service) Leave() {
	conf := s.Conference()
	if conf == nil {
		return
	}
	if !s.joined.Value() {
		log.Info().Str("module", "app.conference").Str("conference", string(s.Name())).Msg("pending join abandoned")
		s.drop(conf)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.leaveTimeout())
		defer cancel()
		if err := conf.Leave(ctx); err != nil {
			log.Warn().Err(err).Str("module", "app.conference").Msg("leave failed")
		}
		s.post(func() { s.onLeft(conf) })
	}()
}

func (s *Service) leaveTimeout() time.Duration {
	if s.opts.LeaveTimeout > 0 {
		return s.opts.LeaveTimeout
	}
	return 5 * time.Second
}

func (s *Service) onJoined(conf core.Conference) {
	if s.Conference() != conf {
		return
	}
	s.joined.Set(true)
	if name := s.DisplayName(); !domain.IsPlaceholderName(name) {
		conf.SetDisplayName(name)
	}
	log.Info().Str("module", "app.conference").Str("conference", string(s.Name())).Str("me", string(conf.MyUserID())).Msg("conference joined")
}

func (s *Service) onLeft(conf core.Conference) {
	if s.Conference() != conf {
		return
	}
	s.drop(conf)
	log.Info().Str("module", "app.conference").Str("conference", string(s.Name())).Msg("conference left")
}

// onError keeps the error readable and clears the handle.
func (s *Service) onError(conf core.Conference, err error) {
	if s.Conference() != conf {
		return
	}
	log.Error().Err(err).Str("module", "app.conference").Str("conference", string(s.Name())).Msg("conference error")
	s.drop(conf)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	for _, fn := range s.errs.Snapshot() {
		fn(err)
	}
}

// drop forgets conf, unbinds its handlers and empties the roster. Parked
// tracks are released.
func (s *Service) drop(conf core.Conference) {
	s.mu.Lock()
	if s.conf != conf {
		s.mu.Unlock()
		return
	}
	unbind := s.unbind
	s.conf = nil
	s.unbind = nil
	s.mu.Unlock()

	if unbind != nil {
		unbind()
	}
	for _, t := range s.store.DropPending() {
		go membership.DisposeTrack(t, s.opts.LeaveTimeout)
	}
	for _, p := range s.store.Participants() {
		s.store.RemoveParticipant(p.ID)
	}
	s.joined.Set(false)
}

// IsJoined is the level-triggered joined flag.
func (s *Service) IsJoined() core.Signal { return s.joined }

// OnError registers fn for conference errors; fn runs on the session loop.
func (s *Service) OnError(fn func(error)) func() { return s.errs.Add(fn) }

func (s *Service) Conference() core.Conference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conf
}

func (s *Service) Name() domain.ConferenceName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Err is the last conference error, cleared by the next Init.
func (s *Service) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// MyUserID is empty without an active conference.
func (s *Service) MyUserID() domain.ParticipantID {
	if conf := s.Conference(); conf != nil {
		return conf.MyUserID()
	}
	return ""
}

func (s *Service) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// SetDisplayName writes name through to storage and the live conference.
// Placeholder names are refused and never persisted.
func (s *Service) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if err := domain.ValidateDisplayName(name); err != nil {
		return err
	}
	if s.kv != nil {
		if err := s.kv.Set(ctx, DisplayNameKey, name); err != nil {
			log.Error().Err(err).Str("module", "app.conference").Msg("cannot save display name")
		}
	}
	s.mu.Lock()
	s.displayName = name
	conf := s.conf
	s.mu.Unlock()
	if conf != nil {
		conf.SetDisplayName(name)
	}
	log.Info().Str("module", "app.conference").Str("name", name).Msg("display name changed")
	return nil
}

func (s *Service) SendTextMessage(text string) error {
	conf := s.Conference()
	if conf == nil {
		return ErrNoConference
	}
	return conf.SendTextMessage(text)
}

// LocalPosition is the position of this client in the room.
func (s *Service) LocalPosition() domain.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localPos
}

// SendPosition moves the local participant, broadcasts a "pos" command and
// recomputes every volume from the new position.
func (s *Service) SendPosition(p domain.Point) error {
	s.mu.Lock()
	s.localPos = p
	s.mu.Unlock()
	s.store.RecalculateVolumes(p)

	conf := s.Conference()
	if conf == nil {
		return ErrNoConference
	}
	b, err := json.Marshal(membership.PositionPayload{ID: conf.MyUserID(), X: p.X, Y: p.Y})
	if err != nil {
		return err
	}
	return conf.SendCommand(core.CommandPosition, core.Command{Value: string(b)})
}

// SendLink broadcasts that this client is linked to main.
func (s *Service) SendLink(main domain.ParticipantID) error {
	conf := s.Conference()
	if conf == nil {
		return ErrNoConference
	}
	b, err := json.Marshal(membership.LinkPayload{ID: conf.MyUserID(), Main: main})
	if err != nil {
		return err
	}
	return conf.SendCommand(core.CommandLink, core.Command{Value: string(b)})
}

// PublishLocalTracks adds every local track not yet published to the active
// conference. It issues nothing once all tracks are published.
func (s *Service) PublishLocalTracks() {
	conf := s.Conference()
	if conf == nil || !s.joined.Value() {
		return
	}
	for _, t := range s.store.LocalTracks() {
		s.mu.Lock()
		done := s.published[t.ID()]
		s.published[t.ID()] = true
		s.mu.Unlock()
		if done || t.Disposed() {
			continue
		}
		go s.publish(conf, t)
	}
}

func (s *Service) publish(conf core.Conference, t core.Track) {
	ctx, cancel := context.WithTimeout(context.Background(), s.leaveTimeout())
	defer cancel()
	err := conf.AddTrack(ctx, t)
	switch {
	case err == nil:
		log.Info().Str("module", "app.conference").Str("track", t.ID()).Msg("local track published")
	case errors.Is(err, core.ErrTrackAlreadyAdded):
	default:
		log.Warn().Err(err).Str("module", "app.conference").Str("track", t.ID()).Msg("publish local track")
	}
}
