package rpc

import (
	"sync"

	"github.com/ultiledger/go-benor/consensus"
)

// Receiver accepts inbound packets.
type Receiver interface {
	Deliver(p consensus.Packet) error
}

// Local connects engines hosted by the same process. Packets are
// handed to the receiver of the target on the sender goroutine.
type Local struct {
	mu        sync.RWMutex
	receivers map[int]Receiver
	// silenced nodes neither send nor receive
	silenced map[int]bool
}

func NewLocal() *Local {
	return &Local{
		receivers: make(map[int]Receiver),
		silenced:  make(map[int]bool),
	}
}

// Register attaches the receiver of node id.
func (l *Local) Register(id int, r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receivers[id] = r
}

// Silence drops every packet to node id from now on.
func (l *Local) Silence(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.silenced[id] = true
}

func (l *Local) Send(to int, p consensus.Packet) {
	l.mu.RLock()
	r, ok := l.receivers[to]
	drop := l.silenced[to] || l.silenced[p.Origin]
	l.mu.RUnlock()
	if !ok || drop {
		return
	}
	_ = r.Deliver(p)
}
