package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mahaj/dupahar/pkg/model"
)

// Mutator is the request-layer collaborator for message mutations. Every
// call returns the canonical server-side result (or just success for
// reaction toggles and deletes) or fails with one of the model error
// types.
type Mutator interface {
	Send(ctx context.Context, channelID, content string, attachment *model.Attachment, replyTo int64) (model.Message, error)
	Edit(ctx context.Context, channelID string, id int64, content string) (model.Message, error)
	Delete(ctx context.Context, channelID string, id int64) error
	React(ctx context.Context, channelID string, id int64, emoji string) error
	Unreact(ctx context.Context, channelID string, id int64, emoji string) error
	Pin(ctx context.Context, channelID string, id int64) (model.Message, error)
	Unpin(ctx context.Context, channelID string, id int64) (model.Message, error)
}

// Broadcaster pushes locally-originated events out over the live
// channel: typing signals, and the confirmed message after a successful
// send so other participants see it without refetching.
type Broadcaster interface {
	Broadcast(ev model.Event) error
}

// WindowState is the lifecycle of one conversation window.
type WindowState int

const (
	Loading WindowState = iota
	Ready
	Closed
)

// Config wires one conversation window to its collaborators.
type Config struct {
	ChannelID   string
	UserID      string
	DisplayName string
	PageSize    int
	History     HistoryFetcher
	Mutations   Mutator
	Live        Broadcaster
	// OnChange, if set, fires after every observable state mutation.
	// It is called without the window lock held.
	OnChange func()
}

// Engine owns one conversation window: it routes live events and local
// actions to the store, tracker, pager and presence set, and applies the
// retry and failure policy. Engines for different conversations are
// fully independent; within one engine a mutex serializes state changes,
// and it is never held across a collaborator call, so live events keep
// flowing while a send or fetch is in flight.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	state    WindowState
	store    *Store
	tracker  *Tracker
	pager    *Pager
	presence *Presence

	ctx    context.Context
	cancel context.CancelFunc
}

func NewEngine(cfg Config) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		state:    Loading,
		store:    store,
		tracker:  NewTracker(store, cfg.ChannelID, cfg.UserID),
		pager:    NewPager(store, cfg.PageSize),
		presence: NewPresence(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Open seeds the window from the newest history page and moves it to
// Ready. Also used for a full reload.
func (e *Engine) Open(ctx context.Context) error {
	items, err := e.cfg.History.FetchPage(ctx, e.cfg.ChannelID, 0, e.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.cfg.ChannelID, err)
	}

	e.mu.Lock()
	if e.state == Closed {
		e.mu.Unlock()
		return nil
	}
	e.store.Seed(items)
	e.pager.Reset()
	if len(items) < e.cfg.PageSize {
		// The whole conversation fit in the first page.
		e.pager.MarkExhausted()
	}
	e.state = Ready
	e.mu.Unlock()

	e.notify()
	return nil
}

// Close discards the window. Late pagination results are dropped, and
// in-flight sends resolve in the background with their results ignored.
func (e *Engine) Close() {
	e.cancel()
	e.mu.Lock()
	e.state = Closed
	e.presence.Clear()
	e.mu.Unlock()
}

// ChannelID returns the conversation this window belongs to.
func (e *Engine) ChannelID() string { return e.cfg.ChannelID }

// State returns the window lifecycle state.
func (e *Engine) State() WindowState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HandleEvent applies one live event to the window. Events for other
// conversations are ignored, as are the current user's own typing
// signals and the echo of an in-flight send (the commit path owns that
// entry).
func (e *Engine) HandleEvent(ev model.Event) {
	if ev.ChannelID != e.cfg.ChannelID {
		return
	}

	e.mu.Lock()
	if e.state == Closed {
		e.mu.Unlock()
		return
	}
	switch ev.Type {
	case model.EventNewMessage, model.EventMessageUpdated:
		if ev.Message == nil {
			break
		}
		if ev.Type == model.EventNewMessage && ev.Message.UserID == e.cfg.UserID {
			if e.tracker.HasPendingDraft(ev.Message.Content, ev.Message.ReplyTo) {
				break
			}
			if localID, ok := e.tracker.FailedDraft(ev.Message.Content, ev.Message.ReplyTo); ok {
				// The send failed client-side but the server committed
				// it; the echo is its confirmation.
				e.tracker.Commit(localID, *ev.Message)
				break
			}
		}
		e.store.UpsertFromLiveEvent(*ev.Message)
	case model.EventMessageDeleted:
		e.store.RemoveByIdentity(ev.MessageID)
	case model.EventReactionAdded:
		e.store.ApplyReactionDelta(ev.MessageID, ev.UserID, ev.Emoji, true, ev.Timestamp)
	case model.EventReactionRemoved:
		e.store.ApplyReactionDelta(ev.MessageID, ev.UserID, ev.Emoji, false, ev.Timestamp)
	case model.EventTypingStart:
		if ev.UserID != e.cfg.UserID {
			e.presence.OnTypingStart(ev.UserID, ev.DisplayName)
		}
	case model.EventTypingStop:
		if ev.UserID != e.cfg.UserID {
			e.presence.OnTypingStop(ev.UserID)
		}
	}
	e.mu.Unlock()

	e.notify()
}

// Send issues an optimistic send: the entry appears at the window tail
// immediately, then commits or fails when the request layer resolves.
// Returns the entry's local identifier.
func (e *Engine) Send(content string, attachment *model.Attachment) (int64, error) {
	return e.send(Draft{Content: content, Attachment: attachment})
}

// Reply is a send targeting another message by server identity.
func (e *Engine) Reply(content string, attachment *model.Attachment, target int64) (int64, error) {
	return e.send(Draft{Content: content, Attachment: attachment, ReplyTo: target})
}

func (e *Engine) send(d Draft) (int64, error) {
	if d.Content == "" && d.Attachment == nil {
		return 0, &model.ValidationError{Op: "send", Reason: "message needs text or an attachment"}
	}

	e.mu.Lock()
	if e.state != Ready {
		e.mu.Unlock()
		return 0, &model.ValidationError{Op: "send", Reason: "conversation is not open"}
	}
	localID := e.tracker.Begin(d)
	e.mu.Unlock()
	e.notify()

	return localID, e.resolve(localID, d)
}

// resolve performs the actual send call for a pending entry and commits
// or fails it. Shared by Send, Reply and RetryFailed.
func (e *Engine) resolve(localID int64, d Draft) error {
	server, err := e.cfg.Mutations.Send(e.ctx, e.cfg.ChannelID, d.Content, d.Attachment, d.ReplyTo)

	e.mu.Lock()
	if e.state == Closed {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.tracker.Fail(localID, err.Error())
		e.mu.Unlock()
		e.notify()
		return err
	}
	e.tracker.Commit(localID, server)
	e.mu.Unlock()
	e.notify()

	if e.cfg.Live != nil {
		if berr := e.cfg.Live.Broadcast(model.Event{
			Type:      model.EventNewMessage,
			ChannelID: e.cfg.ChannelID,
			Message:   &server,
			Timestamp: time.Now(),
		}); berr != nil {
			// Fanout is best effort here: the message is durable and
			// other clients converge on their next fetch.
			return nil
		}
	}
	return nil
}

// RetryFailed re-issues a failed send under a fresh local identifier.
// Retries happen only through this explicit call.
func (e *Engine) RetryFailed(localID int64) (int64, error) {
	e.mu.Lock()
	if e.state != Ready {
		e.mu.Unlock()
		return 0, &model.ValidationError{Op: "retry", Reason: "conversation is not open"}
	}
	newID, d, ok := e.tracker.Retry(localID)
	e.mu.Unlock()
	if !ok {
		return 0, &model.ValidationError{Op: "retry", Reason: "no failed entry with that id"}
	}
	e.notify()

	return newID, e.resolve(newID, d)
}

// React adds the current user's reaction. No optimistic apply: the
// delta lands locally only after the request layer confirms it.
func (e *Engine) React(id int64, emoji string) error {
	err := e.cfg.Mutations.React(e.ctx, e.cfg.ChannelID, id, emoji)
	return e.applyReactionOutcome(id, emoji, true, err)
}

// Unreact removes the current user's reaction, confirming first like
// React.
func (e *Engine) Unreact(id int64, emoji string) error {
	err := e.cfg.Mutations.Unreact(e.ctx, e.cfg.ChannelID, id, emoji)
	return e.applyReactionOutcome(id, emoji, false, err)
}

func (e *Engine) applyReactionOutcome(id int64, emoji string, added bool, err error) error {
	e.mu.Lock()
	if e.state == Closed {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.reconcileConflict(err, id)
		e.mu.Unlock()
		e.notify()
		return err
	}
	e.store.ApplyReactionDelta(id, e.cfg.UserID, emoji, added, time.Now())
	e.mu.Unlock()
	e.notify()
	return nil
}

// Pin marks a message pinned, applying the canonical result on success.
func (e *Engine) Pin(id int64) error {
	server, err := e.cfg.Mutations.Pin(e.ctx, e.cfg.ChannelID, id)
	return e.applyCanonical(id, server, err)
}

// Unpin clears a message's pinned flag.
func (e *Engine) Unpin(id int64) error {
	server, err := e.cfg.Mutations.Unpin(e.ctx, e.cfg.ChannelID, id)
	return e.applyCanonical(id, server, err)
}

// Edit rewrites a message's body. Committed only on confirmation, like
// the other non-send mutations.
func (e *Engine) Edit(id int64, content string) error {
	if content == "" {
		return &model.ValidationError{Op: "edit", Reason: "edited message needs text"}
	}
	server, err := e.cfg.Mutations.Edit(e.ctx, e.cfg.ChannelID, id, content)
	return e.applyCanonical(id, server, err)
}

// applyCanonical folds a mutation outcome into the window: upsert the
// returned message on success, reconcile to absence on conflict.
func (e *Engine) applyCanonical(id int64, server model.Message, err error) error {
	e.mu.Lock()
	if e.state == Closed {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.reconcileConflict(err, id)
		e.mu.Unlock()
		e.notify()
		return err
	}
	e.store.UpsertFromLiveEvent(server)
	e.mu.Unlock()
	e.notify()
	return nil
}

// Delete removes a message server-side, then locally on success.
func (e *Engine) Delete(id int64) error {
	err := e.cfg.Mutations.Delete(e.ctx, e.cfg.ChannelID, id)

	e.mu.Lock()
	if e.state == Closed {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.reconcileConflict(err, id)
		e.mu.Unlock()
		e.notify()
		return err
	}
	e.store.RemoveByIdentity(id)
	e.mu.Unlock()
	e.notify()
	return nil
}

// reconcileConflict removes the target locally when the server says it
// is already gone. Must be called with the lock held.
func (e *Engine) reconcileConflict(err error, id int64) {
	var conflict *model.ConflictError
	if errors.As(err, &conflict) {
		e.store.RemoveByIdentity(id)
	}
}

// LoadOlder grows history backward by one page. No-op while a fetch is
// in flight or once history is exhausted.
func (e *Engine) LoadOlder(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Ready {
		e.mu.Unlock()
		return nil
	}
	page, ok := e.pager.BeginLoad()
	pageSize := e.pager.PageSize()
	e.mu.Unlock()
	if !ok {
		return nil
	}

	items, err := e.cfg.History.FetchPage(ctx, e.cfg.ChannelID, page, pageSize)

	e.mu.Lock()
	if e.state == Closed {
		// The window this page was fetched for no longer exists.
		e.pager.AbortLoad()
		e.mu.Unlock()
		return nil
	}
	e.pager.FinishLoad(items, err)
	e.mu.Unlock()
	e.notify()
	return err
}

// StartTyping broadcasts the current user's typing signal. The caller
// applies the input-side debounce; the engine just forwards.
func (e *Engine) StartTyping() {
	e.broadcastTyping(model.EventTypingStart)
}

// StopTyping broadcasts that the current user stopped typing.
func (e *Engine) StopTyping() {
	e.broadcastTyping(model.EventTypingStop)
}

func (e *Engine) broadcastTyping(t model.EventType) {
	if e.cfg.Live == nil {
		return
	}
	_ = e.cfg.Live.Broadcast(model.Event{
		Type:        t,
		ChannelID:   e.cfg.ChannelID,
		UserID:      e.cfg.UserID,
		DisplayName: e.cfg.DisplayName,
		Timestamp:   time.Now(),
	})
}

// Snapshot returns a read-only copy of the window, oldest first.
func (e *Engine) Snapshot() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Snapshot()
}

// Pinned returns the pinned messages in window order.
func (e *Engine) Pinned() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Pinned()
}

// TypingUsers returns who is currently typing, stale signals expired.
func (e *Engine) TypingUsers() []model.TypingSignal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.Typing()
}

// HistoryExhausted reports whether every older page has been loaded.
func (e *Engine) HistoryExhausted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pager.Exhausted()
}

// Reactions aggregates a window message's reactions for display.
func (e *Engine) Reactions(id int64) []model.ReactionGroup {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.store.Message(id)
	if !ok {
		return nil
	}
	return Aggregate(m.Reactions, e.cfg.UserID)
}

func (e *Engine) notify() {
	if e.cfg.OnChange != nil {
		e.cfg.OnChange()
	}
}
