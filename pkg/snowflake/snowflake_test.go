package snowflake

import (
	"testing"
	"time"
)

func TestNewNodeRange(t *testing.T) {
	if _, err := NewNode(0); err != nil {
		t.Fatalf("node 0 rejected: %v", err)
	}
	if _, err := NewNode(1023); err != nil {
		t.Fatalf("node 1023 rejected: %v", err)
	}
	if _, err := NewNode(1024); err == nil {
		t.Fatal("node 1024 accepted")
	}
	if _, err := NewNode(-1); err == nil {
		t.Fatal("negative node accepted")
	}
}

func TestGenerateMonotonic(t *testing.T) {
	n, err := NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	prev := n.Generate()
	for i := 0; i < 10000; i++ {
		id := n.Generate()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestTimeExtraction(t *testing.T) {
	n, err := NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	before := time.Now().Add(-time.Second)
	id := n.Generate()
	after := time.Now().Add(time.Second)

	got := Time(id)
	if got.Before(before) || got.After(after) {
		t.Fatalf("extracted time %v outside [%v, %v]", got, before, after)
	}
}
