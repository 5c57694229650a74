package timeline

import (
	"time"

	"github.com/mahaj/dupahar/pkg/model"
)

// Draft is the content of a not-yet-confirmed send, kept so a failed
// entry can be retried with exactly what the user wrote.
type Draft struct {
	Content    string
	Attachment *model.Attachment
	ReplyTo    int64
}

// Tracker owns the optimistic-entry lifecycle for one conversation
// window: it assigns transient local identifiers to outgoing sends and
// reconciles them against server confirmations. Local identifiers are
// monotonically assigned and never reused; at most one pending entry
// exists per identifier. They never leave the timeline package once a
// message commits.
type Tracker struct {
	store     *Store
	channelID string
	userID    string
	nextID    int64
	pending   map[int64]Draft
}

func NewTracker(store *Store, channelID, userID string) *Tracker {
	return &Tracker{
		store:     store,
		channelID: channelID,
		userID:    userID,
		pending:   make(map[int64]Draft),
	}
}

// Begin registers a draft, assigns it a fresh local identifier and
// appends the pending entry at the window tail.
func (t *Tracker) Begin(d Draft) int64 {
	t.nextID++
	id := t.nextID
	t.pending[id] = d
	t.store.AppendLocal(model.Message{
		LocalID:    id,
		ChannelID:  t.channelID,
		UserID:     t.userID,
		Content:    d.Content,
		Attachment: d.Attachment,
		ReplyTo:    d.ReplyTo,
		Timestamp:  time.Now(),
	})
	return id
}

// Commit replaces the pending entry with the server-confirmed message,
// in place. Returns false if the identifier is unknown (e.g. the window
// was reloaded underneath an in-flight send).
func (t *Tracker) Commit(localID int64, server model.Message) bool {
	if _, ok := t.pending[localID]; !ok {
		return false
	}
	delete(t.pending, localID)
	return t.store.CommitLocal(localID, server)
}

// Fail marks the entry failed and keeps its draft for a later Retry.
func (t *Tracker) Fail(localID int64, reason string) bool {
	if _, ok := t.pending[localID]; !ok {
		return false
	}
	return t.store.FailLocal(localID, reason)
}

// Retry removes the failed entry and re-issues its draft under a new
// local identifier. It is only ever triggered explicitly by the caller;
// nothing in this package retries on its own.
func (t *Tracker) Retry(localID int64) (int64, Draft, bool) {
	d, ok := t.pending[localID]
	if !ok {
		return 0, Draft{}, false
	}
	delete(t.pending, localID)
	t.store.RemoveLocal(localID)
	return t.Begin(d), d, true
}

// Draft returns the stored draft for a pending or failed entry.
func (t *Tracker) Draft(localID int64) (Draft, bool) {
	d, ok := t.pending[localID]
	return d, ok
}

// HasPendingDraft reports whether any in-flight entry matches the given
// content and reply target. The engine uses it to suppress the server's
// echo of the current user's own send arriving over the live channel
// before the send call itself has resolved. Failed entries do not count:
// their send is no longer in flight, and the echo may be the only way
// the window learns the server committed it after all.
func (t *Tracker) HasPendingDraft(content string, replyTo int64) bool {
	for id, d := range t.pending {
		if d.Content != content || d.ReplyTo != replyTo {
			continue
		}
		if t.entryFailed(id) {
			continue
		}
		return true
	}
	return false
}

// FailedDraft finds a failed entry matching the given content and reply
// target, returning its local identifier.
func (t *Tracker) FailedDraft(content string, replyTo int64) (int64, bool) {
	for id, d := range t.pending {
		if d.Content == content && d.ReplyTo == replyTo && t.entryFailed(id) {
			return id, true
		}
	}
	return 0, false
}

func (t *Tracker) entryFailed(localID int64) bool {
	i := t.store.indexByLocalID(localID)
	return i >= 0 && t.store.entries[i].msg.State == model.StateFailed
}
