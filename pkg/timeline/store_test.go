package timeline

import (
	"testing"
	"time"

	"github.com/mahaj/dupahar/pkg/model"
)

func msg(id int64, user, content string) model.Message {
	return model.Message{
		ID:        id,
		ChannelID: "general",
		UserID:    user,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func ids(s *Store) []int64 {
	window := s.Snapshot()
	out := make([]int64, len(window))
	for i, m := range window {
		out[i] = m.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSeedReplacesWindow(t *testing.T) {
	s := NewStore()
	s.Seed([]model.Message{msg(1, "user1", "a"), msg(2, "user2", "b")})
	if s.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", s.Len())
	}
	s.Seed([]model.Message{msg(3, "user1", "c")})
	if !equalIDs(ids(s), []int64{3}) {
		t.Fatalf("seed did not replace window: %v", ids(s))
	}
}

func TestUpsertIsIdempotentPerIdentity(t *testing.T) {
	s := NewStore()
	s.Seed([]model.Message{msg(1, "user1", "a"), msg(2, "user2", "b")})

	for i := 0; i < 3; i++ {
		s.UpsertFromLiveEvent(msg(3, "user2", "c"))
	}
	if !equalIDs(ids(s), []int64{1, 2, 3}) {
		t.Fatalf("expected [1 2 3], got %v", ids(s))
	}
}

func TestLiveArrivalThenEditKeepsOrder(t *testing.T) {
	s := NewStore()
	s.Seed([]model.Message{msg(1, "user1", "hello"), msg(2, "user2", "hi")})

	s.UpsertFromLiveEvent(msg(3, "user2", "new"))
	if !equalIDs(ids(s), []int64{1, 2, 3}) {
		t.Fatalf("expected [1 2 3], got %v", ids(s))
	}

	edit := msg(1, "user1", "edited")
	edit.Edited = true
	s.UpsertFromLiveEvent(edit)

	if !equalIDs(ids(s), []int64{1, 2, 3}) {
		t.Fatalf("edit reordered the window: %v", ids(s))
	}
	got := s.Snapshot()[0]
	if got.Content != "edited" || !got.Edited {
		t.Fatalf("edit was not applied: %+v", got)
	}
}

func TestUpsertKeepsReactionsWhenEventCarriesNone(t *testing.T) {
	s := NewStore()
	s.Seed([]model.Message{msg(1, "user1", "a")})
	s.ApplyReactionDelta(1, "user2", "like", true, time.Now())

	edit := msg(1, "user1", "edited")
	s.UpsertFromLiveEvent(edit)

	got, _ := s.Message(1)
	if len(got.Reactions) != 1 {
		t.Fatalf("edit dropped reactions: %+v", got.Reactions)
	}
}

func TestPrependHistory(t *testing.T) {
	s := NewStore()
	s.Seed([]model.Message{msg(3, "user1", "c"), msg(4, "user2", "d")})

	older := []model.Message{msg(1, "user1", "a"), msg(2, "user2", "b")}
	if !s.PrependHistory(older) {
		t.Fatal("first prepend rejected")
	}
	if !equalIDs(ids(s), []int64{1, 2, 3, 4}) {
		t.Fatalf("expected [1 2 3 4], got %v", ids(s))
	}

	// The identical page again is an overlapping refetch.
	if s.PrependHistory(older) {
		t.Fatal("overlapping prepend was not rejected")
	}
	if !equalIDs(ids(s), []int64{1, 2, 3, 4}) {
		t.Fatalf("overlapping prepend changed the window: %v", ids(s))
	}

	if s.PrependHistory(nil) {
		t.Fatal("empty prepend was not rejected")
	}
}

func TestRemoveByIdentity(t *testing.T) {
	s := NewStore()
	s.Seed([]model.Message{msg(1, "user1", "a"), msg(2, "user2", "b")})

	if !s.RemoveByIdentity(1) {
		t.Fatal("remove of present message failed")
	}
	if s.RemoveByIdentity(99) {
		t.Fatal("remove of absent message reported success")
	}
	if !equalIDs(ids(s), []int64{2}) {
		t.Fatalf("expected [2], got %v", ids(s))
	}
}

func TestReactionDeltaSetSemantics(t *testing.T) {
	s := NewStore()
	s.Seed([]model.Message{msg(1, "user1", "a")})
	now := time.Now()

	if !s.ApplyReactionDelta(1, "user2", "like", true, now) {
		t.Fatal("first add failed")
	}
	if s.ApplyReactionDelta(1, "user2", "like", true, now) {
		t.Fatal("duplicate add was not a no-op")
	}
	got, _ := s.Message(1)
	if len(got.Reactions) != 1 {
		t.Fatalf("expected 1 reaction, got %d", len(got.Reactions))
	}

	if !s.ApplyReactionDelta(1, "user2", "like", false, now) {
		t.Fatal("remove failed")
	}
	if s.ApplyReactionDelta(1, "user2", "like", false, now) {
		t.Fatal("remove of absent reaction was not a no-op")
	}
	got, _ = s.Message(1)
	if len(got.Reactions) != 0 {
		t.Fatalf("expected no reactions, got %+v", got.Reactions)
	}

	if s.ApplyReactionDelta(42, "user2", "like", true, now) {
		t.Fatal("delta for absent message was not a no-op")
	}
}

func TestCommitLocalKeepsPosition(t *testing.T) {
	s := NewStore()
	s.Seed([]model.Message{msg(1, "user1", "a")})

	local := model.Message{LocalID: 7, ChannelID: "general", UserID: "user1", Content: "hi"}
	s.AppendLocal(local)

	// A live message lands after the optimistic entry.
	s.UpsertFromLiveEvent(msg(2, "user2", "b"))

	server := msg(100, "user1", "hi")
	if !s.CommitLocal(7, server) {
		t.Fatal("commit failed")
	}

	window := s.Snapshot()
	if window[1].ID != 100 {
		t.Fatalf("committed entry moved: window ids %v", ids(s))
	}
	if window[1].State != model.StateSent {
		t.Fatalf("committed entry state = %s", window[1].State)
	}
	if window[1].LocalID != 0 {
		t.Fatal("committed entry kept its local id")
	}
}

func TestFailAndRemoveLocal(t *testing.T) {
	s := NewStore()
	s.AppendLocal(model.Message{LocalID: 1, UserID: "user1", Content: "hi"})

	if !s.FailLocal(1, "network down") {
		t.Fatal("fail failed")
	}
	got := s.Snapshot()[0]
	if got.State != model.StateFailed || got.FailReason != "network down" {
		t.Fatalf("failed entry not tagged: %+v", got)
	}

	if !s.RemoveLocal(1) {
		t.Fatal("remove failed")
	}
	if s.Len() != 0 {
		t.Fatal("entry still present after remove")
	}
}

func TestSnapshotIsDefensive(t *testing.T) {
	s := NewStore()
	seeded := msg(1, "user1", "a")
	seeded.Reactions = []model.Reaction{{UserID: "user2", Emoji: "like"}}
	s.Seed([]model.Message{seeded})

	snap := s.Snapshot()
	snap[0].Content = "mutated"
	snap[0].Reactions[0].Emoji = "mutated"

	got, _ := s.Message(1)
	if got.Content != "a" || got.Reactions[0].Emoji != "like" {
		t.Fatal("snapshot aliases store state")
	}
}

func TestPinnedView(t *testing.T) {
	s := NewStore()
	pinned := msg(2, "user1", "b")
	pinned.Pinned = true
	s.Seed([]model.Message{msg(1, "user1", "a"), pinned, msg(3, "user2", "c")})

	got := s.Pinned()
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("pinned view wrong: %+v", got)
	}
}

func TestVersionBumpsOnMutation(t *testing.T) {
	s := NewStore()
	v := s.Version()
	s.Seed([]model.Message{msg(1, "user1", "a")})
	if s.Version() == v {
		t.Fatal("seed did not bump version")
	}
	v = s.Version()
	s.ApplyReactionDelta(99, "user2", "like", true, time.Now())
	if s.Version() != v {
		t.Fatal("no-op delta bumped version")
	}
}
