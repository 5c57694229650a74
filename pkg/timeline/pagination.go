package timeline

import (
	"context"

	"github.com/mahaj/dupahar/pkg/model"
)

// HistoryFetcher is the paginated history collaborator. Page 0 is the
// newest page; higher indices reach further back.
type HistoryFetcher interface {
	FetchPage(ctx context.Context, channelID string, page, pageSize int) ([]model.Message, error)
}

// Pager tracks backward history growth for one window. A fetched page
// shorter than the page size means no more history exists; from then on
// BeginLoad refuses until the window is reseeded. The pager holds no
// lock of its own: the owning engine serializes access and performs the
// actual fetch between BeginLoad and FinishLoad.
type Pager struct {
	store     *Store
	pageSize  int
	nextPage  int
	inFlight  bool
	exhausted bool
}

func NewPager(store *Store, pageSize int) *Pager {
	return &Pager{store: store, pageSize: pageSize, nextPage: 1}
}

// Reset re-arms the pager after a full reload: page 0 is in the window
// again and older pages start at 1.
func (p *Pager) Reset() {
	p.nextPage = 1
	p.inFlight = false
	p.exhausted = false
}

// Exhausted reports whether the conversation's history is fully loaded.
func (p *Pager) Exhausted() bool { return p.exhausted }

// MarkExhausted latches exhaustion without a fetch, used when the seed
// page already held the whole conversation.
func (p *Pager) MarkExhausted() { p.exhausted = true }

// PageSize returns the fixed page size requests are made with.
func (p *Pager) PageSize() int { return p.pageSize }

// BeginLoad claims the next older page. It returns ok=false while a
// fetch is already in flight or after exhaustion, in which case the
// caller must not fetch.
func (p *Pager) BeginLoad() (page int, ok bool) {
	if p.inFlight || p.exhausted {
		return 0, false
	}
	p.inFlight = true
	return p.nextPage, true
}

// FinishLoad applies a fetch outcome claimed by BeginLoad. On success
// the page is prepended to the window and a short page latches
// exhaustion. On failure the window is untouched and the pager is ready
// for another BeginLoad.
func (p *Pager) FinishLoad(items []model.Message, err error) {
	p.inFlight = false
	if err != nil {
		return
	}
	if len(items) < p.pageSize {
		p.exhausted = true
	}
	if len(items) > 0 && p.store.PrependHistory(items) {
		p.nextPage++
	}
}

// AbortLoad releases a claim without applying anything, e.g. when the
// window closed while the fetch was in flight.
func (p *Pager) AbortLoad() {
	p.inFlight = false
}
