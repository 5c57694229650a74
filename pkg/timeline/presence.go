package timeline

import (
	"time"

	"github.com/mahaj/dupahar/pkg/model"
)

// QuietThreshold is how long a typing signal stays live without an
// explicit stop. It sits above the client-side stop debounce so a
// paused typist expires rather than flickers.
const QuietThreshold = 8 * time.Second

// Presence tracks who is typing in one conversation. Signals decay
// lazily: every read sweeps out entries older than the quiet threshold,
// so no background timer is needed. The current user's own signals are
// filtered out by the engine before they get here.
type Presence struct {
	signals map[string]model.TypingSignal
	now     func() time.Time
}

func NewPresence() *Presence {
	return &Presence{signals: make(map[string]model.TypingSignal), now: time.Now}
}

// OnTypingStart upserts a participant's typing signal. A repeated start
// refreshes the declared-at time, extending the signal's life.
func (p *Presence) OnTypingStart(userID, displayName string) {
	p.signals[userID] = model.TypingSignal{
		UserID:      userID,
		DisplayName: displayName,
		StartedAt:   p.now(),
	}
}

// OnTypingStop removes a participant's signal. No-op if absent.
func (p *Presence) OnTypingStop(userID string) {
	delete(p.signals, userID)
}

func (p *Presence) expireStale(now time.Time) {
	for id, s := range p.signals {
		if now.Sub(s.StartedAt) > QuietThreshold {
			delete(p.signals, id)
		}
	}
}

// Typing returns the currently live signals, having first expired any
// that went quiet. Order is unspecified.
func (p *Presence) Typing() []model.TypingSignal {
	p.expireStale(p.now())
	if len(p.signals) == 0 {
		return nil
	}
	out := make([]model.TypingSignal, 0, len(p.signals))
	for _, s := range p.signals {
		out = append(out, s)
	}
	return out
}

// Clear discards every signal, used when the window closes.
func (p *Presence) Clear() {
	p.signals = make(map[string]model.TypingSignal)
}
