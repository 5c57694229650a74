package timeline

import (
	"testing"

	"github.com/mahaj/dupahar/pkg/model"
)

func newTestTracker() (*Store, *Tracker) {
	s := NewStore()
	return s, NewTracker(s, "general", "user1")
}

func TestBeginAppendsPendingAtTail(t *testing.T) {
	s, tr := newTestTracker()
	s.Seed([]model.Message{msg(1, "user2", "a")})

	id := tr.Begin(Draft{Content: "hi"})
	if id == 0 {
		t.Fatal("begin returned zero id")
	}

	window := s.Snapshot()
	last := window[len(window)-1]
	if last.LocalID != id || last.State != model.StatePending || last.Content != "hi" {
		t.Fatalf("pending entry wrong: %+v", last)
	}
}

func TestLocalIDsAreNeverReused(t *testing.T) {
	_, tr := newTestTracker()

	seen := map[int64]bool{}
	id := tr.Begin(Draft{Content: "a"})
	seen[id] = true
	tr.Fail(id, "boom")
	id2, _, ok := tr.Retry(id)
	if !ok {
		t.Fatal("retry failed")
	}
	if seen[id2] {
		t.Fatalf("local id %d reused", id2)
	}
	id3 := tr.Begin(Draft{Content: "b"})
	if id3 == id || id3 == id2 {
		t.Fatalf("local id reused: %d", id3)
	}
}

func TestCommitSwapsIdentityInPlace(t *testing.T) {
	s, tr := newTestTracker()
	s.Seed([]model.Message{msg(1, "user2", "a")})

	id := tr.Begin(Draft{Content: "hi"})
	s.UpsertFromLiveEvent(msg(2, "user2", "later"))

	if !tr.Commit(id, msg(100, "user1", "hi")) {
		t.Fatal("commit failed")
	}
	if !equalIDs(ids(s), []int64{1, 100, 2}) {
		t.Fatalf("commit moved the entry: %v", ids(s))
	}
	if tr.Commit(id, msg(100, "user1", "hi")) {
		t.Fatal("second commit of same id succeeded")
	}
}

func TestFailThenRetryKeepsExactlyOneEntry(t *testing.T) {
	s, tr := newTestTracker()

	id := tr.Begin(Draft{Content: "hi"})
	if !tr.Fail(id, "network down") {
		t.Fatal("fail failed")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry after fail, got %d", s.Len())
	}

	newID, d, ok := tr.Retry(id)
	if !ok {
		t.Fatal("retry failed")
	}
	if d.Content != "hi" {
		t.Fatalf("retry lost the draft: %+v", d)
	}
	if s.Len() != 1 {
		t.Fatalf("expected exactly 1 visible entry after retry, got %d", s.Len())
	}
	got := s.Snapshot()[0]
	if got.LocalID != newID || got.State != model.StatePending {
		t.Fatalf("retried entry wrong: %+v", got)
	}

	// The old identifier is dead.
	if _, _, ok := tr.Retry(id); ok {
		t.Fatal("retry of consumed id succeeded")
	}
}

func TestHasPendingDraftIgnoresFailedEntries(t *testing.T) {
	_, tr := newTestTracker()

	id := tr.Begin(Draft{Content: "hi"})
	if !tr.HasPendingDraft("hi", 0) {
		t.Fatal("in-flight draft not found")
	}
	if _, ok := tr.FailedDraft("hi", 0); ok {
		t.Fatal("in-flight draft reported as failed")
	}

	tr.Fail(id, "timeout")
	if tr.HasPendingDraft("hi", 0) {
		t.Fatal("failed draft still counts as in flight")
	}
	failedID, ok := tr.FailedDraft("hi", 0)
	if !ok || failedID != id {
		t.Fatalf("failed draft lookup: id=%d ok=%v", failedID, ok)
	}

	tr.Commit(id, msg(100, "user1", "hi"))
	if _, ok := tr.FailedDraft("hi", 0); ok {
		t.Fatal("matched failed draft after commit")
	}
}

func TestHasPendingDraft(t *testing.T) {
	_, tr := newTestTracker()

	id := tr.Begin(Draft{Content: "hi", ReplyTo: 5})
	if !tr.HasPendingDraft("hi", 5) {
		t.Fatal("pending draft not found")
	}
	if tr.HasPendingDraft("hi", 0) {
		t.Fatal("matched draft with different reply target")
	}
	tr.Commit(id, msg(100, "user1", "hi"))
	if tr.HasPendingDraft("hi", 5) {
		t.Fatal("matched draft after commit")
	}
}
