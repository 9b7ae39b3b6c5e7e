// Package membership holds the roster of a conference: participants, their
// tracks, positions, links and the chat log.
package membership

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
	"github.com/dkeye/ScreenShare/internal/spatial"
)

var (
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrTrackOwnerMismatch = errors.New("track belongs to another participant")
	ErrTrackKind          = errors.New("wrong track kind")
)

// State is an immutable snapshot of the roster. Never modify a State
// obtained from the Store.
type State struct {
	Participants map[domain.ParticipantID]Participant
	Messages     []domain.ChatMessage
	Unread       int
	// LocalTracks is the slot for tracks captured on this client.
	LocalTracks []core.Track

	// remote tracks that arrived before their owner joined
	pending map[domain.ParticipantID][]core.Track
}

func (s *State) clone() *State {
	next := &State{
		Participants: make(map[domain.ParticipantID]Participant, len(s.Participants)),
		Messages:     s.Messages[:len(s.Messages):len(s.Messages)],
		Unread:       s.Unread,
		LocalTracks:  s.LocalTracks,
		pending:      make(map[domain.ParticipantID][]core.Track, len(s.pending)),
	}
	for id, p := range s.Participants {
		next.Participants[id] = p
	}
	for id, ts := range s.pending {
		next.pending[id] = ts
	}
	return next
}

// Store is the process-wide roster. Writers are serialised and every command
// publishes a whole new State, so readers never see a partial update.
type Store struct {
	mu    sync.Mutex
	state atomic.Pointer[State]
	room  domain.Point

	subMu sync.Mutex
	subs  []chan *State
}

// NewStore creates an empty roster for a room of the given size.
func NewStore(room domain.Point) *Store {
	s := &Store{room: room}
	s.state.Store(&State{
		Participants: map[domain.ParticipantID]Participant{},
		pending:      map[domain.ParticipantID][]core.Track{},
	})
	return s
}

// Snapshot returns the current immutable state.
func (s *Store) Snapshot() *State { return s.state.Load() }

func (s *Store) update(fn func(st *State) error) error {
	s.mu.Lock()
	next := s.state.Load().clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state.Store(next)
	s.mu.Unlock()
	s.notify(next)
	return nil
}

func (s *Store) updateParticipant(id domain.ParticipantID, fn func(p *Participant) error) error {
	return s.update(func(st *State) error {
		p, ok := st.Participants[id]
		if !ok {
			return ErrUnknownParticipant
		}
		if err := fn(&p); err != nil {
			return err
		}
		st.Participants[id] = p
		return nil
	})
}

// AddParticipant inserts id at its derived initial position. A repeated join
// keeps the existing entry. Tracks parked for id are attached.
func (s *Store) AddParticipant(id domain.ParticipantID, displayName string) (added bool) {
	_ = s.update(func(st *State) error {
		if existing, ok := st.Participants[id]; ok {
			if displayName != "" && existing.DisplayName != displayName {
				existing.DisplayName = displayName
				st.Participants[id] = existing
			}
			return nil
		}
		p := Participant{
			ID:          id,
			DisplayName: displayName,
			Volume:      1,
			Position:    InitialPosition(id, s.room),
		}
		for _, t := range st.pending[id] {
			attachTrack(&p, t)
		}
		delete(st.pending, id)
		st.Participants[id] = p
		added = true
		return nil
	})
	if added {
		log.Info().Str("module", "app.membership").Str("id", string(id)).Msg("participant added")
	}
	return added
}

// RemoveParticipant deletes id. Removing an unknown id is a no-op.
func (s *Store) RemoveParticipant(id domain.ParticipantID) (removed bool) {
	_ = s.update(func(st *State) error {
		if _, ok := st.Participants[id]; ok {
			delete(st.Participants, id)
			removed = true
		}
		delete(st.pending, id)
		return nil
	})
	if removed {
		log.Info().Str("module", "app.membership").Str("id", string(id)).Msg("participant removed")
	}
	return removed
}

func attachTrack(p *Participant, t core.Track) {
	if t.Kind() == domain.TrackAudio {
		p.AudioTrack = t
		p.Muted = t.IsMuted()
		return
	}
	p.VideoTrack = t
}

func checkOwner(id domain.ParticipantID, t core.Track) error {
	if t.ParticipantID() != id {
		return ErrTrackOwnerMismatch
	}
	return nil
}

// SetAudioTrack stores t as the audio of id and copies its mute flag.
func (s *Store) SetAudioTrack(id domain.ParticipantID, t core.Track) error {
	if err := checkOwner(id, t); err != nil {
		return err
	}
	if t.Kind() != domain.TrackAudio {
		return ErrTrackKind
	}
	return s.updateParticipant(id, func(p *Participant) error {
		attachTrack(p, t)
		return nil
	})
}

func (s *Store) ClearAudioTrack(id domain.ParticipantID) error {
	return s.updateParticipant(id, func(p *Participant) error {
		p.AudioTrack = nil
		return nil
	})
}

func (s *Store) SetVideoTrack(id domain.ParticipantID, t core.Track) error {
	if err := checkOwner(id, t); err != nil {
		return err
	}
	if !t.Kind().IsVideo() {
		return ErrTrackKind
	}
	return s.updateParticipant(id, func(p *Participant) error {
		attachTrack(p, t)
		return nil
	})
}

func (s *Store) ClearVideoTrack(id domain.ParticipantID) error {
	return s.updateParticipant(id, func(p *Participant) error {
		p.VideoTrack = nil
		return nil
	})
}

// UpdatePosition moves id. Only clients that run the spatial UI send
// positions, so id is also marked as a synced client.
func (s *Store) UpdatePosition(id domain.ParticipantID, pos domain.Point) error {
	return s.updateParticipant(id, func(p *Participant) error {
		p.Position = pos
		p.IsSyncedClient = true
		return nil
	})
}

// UpdateLink records that id is linked to mainID. mainID must be in the
// roster now; it may leave later. An empty mainID clears the link.
func (s *Store) UpdateLink(id, mainID domain.ParticipantID) error {
	return s.update(func(st *State) error {
		p, ok := st.Participants[id]
		if !ok {
			return ErrUnknownParticipant
		}
		if _, ok := st.Participants[mainID]; !ok && mainID != "" {
			return ErrUnknownParticipant
		}
		p.LinkMain = mainID
		st.Participants[id] = p
		return nil
	})
}

func (s *Store) SetMuted(id domain.ParticipantID, muted bool) error {
	return s.updateParticipant(id, func(p *Participant) error {
		p.Muted = muted
		return nil
	})
}

func (s *Store) SetZoom(id domain.ParticipantID, zoomed bool) error {
	return s.updateParticipant(id, func(p *Participant) error {
		p.Zoomed = zoomed
		return nil
	})
}

// AppendMessage adds a chat message and bumps the unread counter.
func (s *Store) AppendMessage(sender domain.ParticipantID, text string, at time.Time) domain.ChatMessage {
	msg := domain.ChatMessage{
		ID:        uuid.NewString(),
		SenderID:  sender,
		Text:      text,
		Timestamp: at,
	}
	_ = s.update(func(st *State) error {
		st.Messages = append(st.Messages, msg)
		st.Unread++
		return nil
	})
	return msg
}

func (s *Store) ClearUnread() {
	_ = s.update(func(st *State) error {
		st.Unread = 0
		return nil
	})
}

// SetLocalTracks fills the local-track slot; nil clears it.
func (s *Store) SetLocalTracks(tracks []core.Track) {
	_ = s.update(func(st *State) error {
		st.LocalTracks = append([]core.Track(nil), tracks...)
		return nil
	})
}

// ParkTrack keeps a remote track whose owner has not joined yet. A parked
// track of the same kind is replaced and returned so the caller can release it.
func (s *Store) ParkTrack(t core.Track) (replaced []core.Track) {
	_ = s.update(func(st *State) error {
		id := t.ParticipantID()
		kept := make([]core.Track, 0, len(st.pending[id])+1)
		for _, old := range st.pending[id] {
			switch {
			case old.ID() == t.ID():
			case old.Kind() == t.Kind():
				replaced = append(replaced, old)
			default:
				kept = append(kept, old)
			}
		}
		st.pending[id] = append(kept, t)
		return nil
	})
	return replaced
}

// DropPending forgets every parked track and returns them.
func (s *Store) DropPending() (dropped []core.Track) {
	_ = s.update(func(st *State) error {
		for id, ts := range st.pending {
			dropped = append(dropped, ts...)
			delete(st.pending, id)
		}
		return nil
	})
	return dropped
}

// UnparkTrack drops a parked track; it reports whether one was parked.
func (s *Store) UnparkTrack(t core.Track) (found bool) {
	_ = s.update(func(st *State) error {
		id := t.ParticipantID()
		kept := st.pending[id][:0:0]
		for _, old := range st.pending[id] {
			if old.ID() == t.ID() {
				found = true
				continue
			}
			kept = append(kept, old)
		}
		if len(kept) == 0 {
			delete(st.pending, id)
		} else {
			st.pending[id] = kept
		}
		return nil
	})
	return found
}

// RecalculateVolume derives the volume of id as heard from local.
func (s *Store) RecalculateVolume(id domain.ParticipantID, local domain.Point) error {
	return s.updateParticipant(id, func(p *Participant) error {
		p.Volume = spatial.VolumeFor(local, p.Position)
		return nil
	})
}

// RecalculateVolumes derives every volume as heard from local.
func (s *Store) RecalculateVolumes(local domain.Point) {
	_ = s.update(func(st *State) error {
		for id, p := range st.Participants {
			p.Volume = spatial.VolumeFor(local, p.Position)
			st.Participants[id] = p
		}
		return nil
	})
}

// Participant looks up one roster entry.
func (s *Store) Participant(id domain.ParticipantID) (Participant, bool) {
	p, ok := s.Snapshot().Participants[id]
	return p, ok
}

// Participants returns the roster ordered by id.
func (s *Store) Participants() []Participant {
	st := s.Snapshot()
	out := make([]Participant, 0, len(st.Participants))
	for _, p := range st.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ParticipantsSnapshot is the API view of the roster.
func (s *Store) ParticipantsSnapshot() []ParticipantDTO {
	ps := s.Participants()
	out := make([]ParticipantDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.DTO())
	}
	return out
}

func (s *Store) Count() int { return len(s.Snapshot().Participants) }

func (s *Store) Messages() []domain.ChatMessage { return s.Snapshot().Messages }

func (s *Store) Unread() int { return s.Snapshot().Unread }

func (s *Store) LocalTracks() []core.Track { return s.Snapshot().LocalTracks }

// Subscribe returns a channel receiving every published state. Slow
// subscribers miss intermediate states.
func (s *Store) Subscribe() chan *State {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(chan *State, 16)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) Unsubscribe(ch chan *State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, sub := range s.subs {
		if sub == ch {
			close(sub)
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *Store) notify(st *State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
}
