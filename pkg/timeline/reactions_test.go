package timeline

import (
	"reflect"
	"testing"

	"github.com/mahaj/dupahar/pkg/model"
)

func reaction(user, emoji string) model.Reaction {
	return model.Reaction{UserID: user, Emoji: emoji}
}

func TestAggregateGroupsByFirstAppearance(t *testing.T) {
	in := []model.Reaction{
		reaction("user2", "like"),
		reaction("user3", "heart"),
		reaction("user1", "like"),
		reaction("user4", "heart"),
		reaction("user5", "laugh"),
	}

	groups := Aggregate(in, "user1")
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if groups[0].Emoji != "like" || groups[1].Emoji != "heart" || groups[2].Emoji != "laugh" {
		t.Fatalf("groups not in first-seen order: %+v", groups)
	}
	if !groups[0].Me {
		t.Fatal("current user's like not flagged")
	}
	if groups[1].Me || groups[2].Me {
		t.Fatal("Me flagged on a group without the current user")
	}
	if !reflect.DeepEqual(groups[0].Users, []string{"user2", "user1"}) {
		t.Fatalf("users not in first-seen order: %v", groups[0].Users)
	}
}

func TestAggregateCountsSumToInputLength(t *testing.T) {
	in := []model.Reaction{
		reaction("user1", "like"),
		reaction("user2", "like"),
		reaction("user3", "heart"),
		reaction("user1", "heart"),
	}
	groups := Aggregate(in, "user1")

	sum := 0
	for _, g := range groups {
		sum += g.Count
		if g.Count != len(g.Users) {
			t.Fatalf("group %s count %d != users %v", g.Emoji, g.Count, g.Users)
		}
		seen := map[string]bool{}
		for _, u := range g.Users {
			if seen[u] {
				t.Fatalf("duplicate user %s in group %s", u, g.Emoji)
			}
			seen[u] = true
		}
	}
	if sum != len(in) {
		t.Fatalf("group counts sum to %d, input has %d", sum, len(in))
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	in := []model.Reaction{
		reaction("user2", "like"),
		reaction("user1", "like"),
		reaction("user3", "heart"),
	}
	a := Aggregate(in, "user1")
	b := Aggregate(in, "user1")
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same input produced different output:\n%+v\n%+v", a, b)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if got := Aggregate(nil, "user1"); got != nil {
		t.Fatalf("expected nil for empty input, got %+v", got)
	}
}
