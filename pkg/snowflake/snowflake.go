package snowflake

import (
	"errors"
	"sync"
	"time"
)

// Layout: 41 bits of milliseconds since epoch, 10 bits of node id, 12
// bits of per-millisecond sequence. IDs sort by creation time, which is
// what lets the messages table cluster on id.
const (
	nodeBits  = 10
	stepBits  = 12
	nodeMax   = -1 ^ (-1 << nodeBits)
	stepMask  = -1 ^ (-1 << stepBits)
	timeShift = nodeBits + stepBits
	nodeShift = stepBits

	// 2024-01-01 00:00:00 UTC
	epoch int64 = 1704067200000
)

// Node generates unique message identifiers for one service instance.
type Node struct {
	mu   sync.Mutex
	last int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("node number must be between 0 and 1023")
	}
	return &Node{node: node}, nil
}

// Generate returns the next identifier. Safe for concurrent use.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < n.last {
		// Clock went backwards; hold the line until it catches up.
		now = n.last
	}

	if now == n.last {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.last {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}
	n.last = now

	return ((now - epoch) << timeShift) | (n.node << nodeShift) | n.step
}

// Time extracts an identifier's creation time.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + epoch)
}
