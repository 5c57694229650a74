package timeline

import (
	"testing"
	"time"
)

func TestTypingStartAndStop(t *testing.T) {
	p := NewPresence()

	p.OnTypingStart("user2", "User Two")
	typers := p.Typing()
	if len(typers) != 1 || typers[0].UserID != "user2" || typers[0].DisplayName != "User Two" {
		t.Fatalf("unexpected typing set: %+v", typers)
	}

	p.OnTypingStop("user2")
	if len(p.Typing()) != 0 {
		t.Fatal("stop did not remove the signal")
	}

	// Stopping an absent participant is fine.
	p.OnTypingStop("user3")
}

func TestTypingSignalExpiresAfterQuietThreshold(t *testing.T) {
	p := NewPresence()
	now := time.Now()
	p.now = func() time.Time { return now }

	p.OnTypingStart("user2", "User Two")

	now = now.Add(QuietThreshold - time.Second)
	if len(p.Typing()) != 1 {
		t.Fatal("signal expired before the quiet threshold")
	}

	now = now.Add(2 * time.Second)
	if len(p.Typing()) != 0 {
		t.Fatal("signal survived past the quiet threshold")
	}
}

func TestRepeatedStartRefreshesSignal(t *testing.T) {
	p := NewPresence()
	now := time.Now()
	p.now = func() time.Time { return now }

	p.OnTypingStart("user2", "User Two")
	now = now.Add(QuietThreshold - time.Second)
	p.OnTypingStart("user2", "User Two")
	now = now.Add(QuietThreshold - time.Second)

	if len(p.Typing()) != 1 {
		t.Fatal("refreshed signal expired")
	}
}

func TestClear(t *testing.T) {
	p := NewPresence()
	p.OnTypingStart("user2", "User Two")
	p.Clear()
	if len(p.Typing()) != 0 {
		t.Fatal("clear left signals behind")
	}
}
