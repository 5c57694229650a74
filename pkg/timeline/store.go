package timeline

import (
	"time"

	"github.com/mahaj/dupahar/pkg/model"
)

type reactionKey struct {
	userID string
	emoji  string
}

// entry wraps a window message with a membership set over its reactions,
// so the at-most-one-per-(user,emoji) invariant is structural instead of
// enforced by scanning the slice on every delta.
type entry struct {
	msg       *model.Message
	reactions map[reactionKey]struct{}
}

func newEntry(m model.Message) *entry {
	e := &entry{msg: &m, reactions: make(map[reactionKey]struct{})}
	// Drop any (user, emoji) duplicates a fetched page might carry.
	kept := m.Reactions[:0:0]
	for _, r := range m.Reactions {
		k := reactionKey{r.UserID, r.Emoji}
		if _, ok := e.reactions[k]; ok {
			continue
		}
		e.reactions[k] = struct{}{}
		kept = append(kept, r)
	}
	e.msg.Reactions = kept
	return e
}

// Store is the ordered, deduplicated message window for one open
// conversation. Messages are ordered by arrival into the window, oldest
// first; an edit never moves a message. The store does no locking of its
// own: the owning engine serializes all access.
type Store struct {
	entries []*entry
	version uint64
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) bump() { s.version++ }

// Version increments on every observable mutation. The rendering layer
// can use it to skip repaints for unchanged state.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) Len() int { return len(s.entries) }

func (s *Store) indexByID(id int64) int {
	if id == 0 {
		return -1
	}
	for i, e := range s.entries {
		if e.msg.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByLocalID(localID int64) int {
	if localID == 0 {
		return -1
	}
	for i, e := range s.entries {
		if e.msg.LocalID == localID {
			return i
		}
	}
	return -1
}

// Seed replaces the window with a freshly fetched page. Used on initial
// load and full reload; idempotent for the same page.
func (s *Store) Seed(messages []model.Message) {
	s.entries = make([]*entry, 0, len(messages))
	for _, m := range messages {
		m.State = model.StateSent
		s.entries = append(s.entries, newEntry(m))
	}
	s.bump()
}

// PrependHistory inserts an older page before the current oldest entry.
// A page whose newest (last) item is already present is an overlapping
// refetch and is rejected whole. Returns whether the page was applied.
func (s *Store) PrependHistory(older []model.Message) bool {
	if len(older) == 0 {
		return false
	}
	if s.indexByID(older[len(older)-1].ID) >= 0 {
		return false
	}
	prefix := make([]*entry, 0, len(older))
	for _, m := range older {
		if s.indexByID(m.ID) >= 0 {
			continue
		}
		m.State = model.StateSent
		prefix = append(prefix, newEntry(m))
	}
	s.entries = append(prefix, s.entries...)
	s.bump()
	return true
}

// UpsertFromLiveEvent inserts a new message at the tail, or replaces an
// existing one matched by server identity in place. On replace, the
// incoming message wins field by field, except that an incoming message
// carrying no reactions keeps the reactions already accumulated here
// (edit and pin events do not re-deliver the reaction list).
func (s *Store) UpsertFromLiveEvent(m model.Message) {
	m.State = model.StateSent
	i := s.indexByID(m.ID)
	if i < 0 {
		s.entries = append(s.entries, newEntry(m))
		s.bump()
		return
	}
	old := s.entries[i]
	e := newEntry(m)
	if len(m.Reactions) == 0 {
		e.msg.Reactions = old.msg.Reactions
		e.reactions = old.reactions
	}
	s.entries[i] = e
	s.bump()
}

// RemoveByIdentity deletes a message by server identity. No-op if
// absent.
func (s *Store) RemoveByIdentity(id int64) bool {
	i := s.indexByID(id)
	if i < 0 {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.bump()
	return true
}

// ApplyReactionDelta adds or removes one (user, emoji) reaction on the
// addressed message. Duplicate adds and missing removes are no-ops, as
// is a delta for a message not in the window.
func (s *Store) ApplyReactionDelta(messageID int64, userID, emoji string, added bool, at time.Time) bool {
	i := s.indexByID(messageID)
	if i < 0 {
		return false
	}
	e := s.entries[i]
	k := reactionKey{userID, emoji}
	if added {
		if _, ok := e.reactions[k]; ok {
			return false
		}
		e.reactions[k] = struct{}{}
		e.msg.Reactions = append(e.msg.Reactions, model.Reaction{UserID: userID, Emoji: emoji, Timestamp: at})
		s.bump()
		return true
	}
	if _, ok := e.reactions[k]; !ok {
		return false
	}
	delete(e.reactions, k)
	for j, r := range e.msg.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			e.msg.Reactions = append(e.msg.Reactions[:j], e.msg.Reactions[j+1:]...)
			break
		}
	}
	s.bump()
	return true
}

// AppendLocal places an optimistic entry at the tail. The message must
// carry a LocalID and no server identity yet.
func (s *Store) AppendLocal(m model.Message) {
	m.State = model.StatePending
	s.entries = append(s.entries, newEntry(m))
	s.bump()
}

// CommitLocal swaps a pending entry's local identity for the confirmed
// server message, in place. The entry keeps its timeline position even
// if the server timestamp would sort it elsewhere; reordering on commit
// would reshuffle a conversation the user has already seen.
func (s *Store) CommitLocal(localID int64, server model.Message) bool {
	i := s.indexByLocalID(localID)
	if i < 0 {
		return false
	}
	server.LocalID = 0
	server.State = model.StateSent
	s.entries[i] = newEntry(server)
	s.bump()
	return true
}

// FailLocal marks a pending entry failed, keeping it visible with the
// reason attached for the retry affordance.
func (s *Store) FailLocal(localID int64, reason string) bool {
	i := s.indexByLocalID(localID)
	if i < 0 {
		return false
	}
	s.entries[i].msg.State = model.StateFailed
	s.entries[i].msg.FailReason = reason
	s.bump()
	return true
}

// RemoveLocal deletes an optimistic entry, e.g. when a failed send is
// retried under a fresh local identity.
func (s *Store) RemoveLocal(localID int64) bool {
	i := s.indexByLocalID(localID)
	if i < 0 {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.bump()
	return true
}

// Message returns a copy of the message with the given server identity.
func (s *Store) Message(id int64) (model.Message, bool) {
	i := s.indexByID(id)
	if i < 0 {
		return model.Message{}, false
	}
	return copyMessage(s.entries[i].msg), true
}

// Snapshot returns a defensive copy of the window, oldest first.
func (s *Store) Snapshot() []model.Message {
	out := make([]model.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = copyMessage(e.msg)
	}
	return out
}

// Pinned returns the pinned messages in window order.
func (s *Store) Pinned() []model.Message {
	var out []model.Message
	for _, e := range s.entries {
		if e.msg.Pinned {
			out = append(out, copyMessage(e.msg))
		}
	}
	return out
}

func copyMessage(m *model.Message) model.Message {
	c := *m
	if m.Attachment != nil {
		a := *m.Attachment
		c.Attachment = &a
	}
	if len(m.Reactions) > 0 {
		c.Reactions = append([]model.Reaction(nil), m.Reactions...)
	}
	return c
}
