// Copyright 2026 The go-benor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package consensus

import (
	"context"
	"sync"

	"github.com/deckarep/golang-set"
)

type slotKey struct {
	iteration int
	phase     Phase
}

// phaseLog holds the packets of one (iteration, phase) slot.
type phaseLog struct {
	origins mapset.Set
	packets []Packet
	tally   Tally
}

type waiter struct {
	threshold int
	ch        chan struct{}
}

// MessageStore is the inbox of a node. It keeps the first packet
// of every origin per (iteration, phase) and wakes up waiters as
// soon as their threshold of distinct origins is crossed.
type MessageStore struct {
	mu      sync.Mutex
	logs    map[slotKey]*phaseLog
	waiters map[slotKey][]*waiter
	// no packet is accepted once sealed
	sealed bool
	size   int
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		logs:    make(map[slotKey]*phaseLog),
		waiters: make(map[slotKey][]*waiter),
	}
}

// Store records the packet unless a packet with the same
// iteration, phase and origin was recorded before. It returns
// whether the packet was inserted.
func (s *MessageStore) Store(p Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return false
	}
	key := slotKey{iteration: p.Iteration, phase: p.Phase}
	l, ok := s.logs[key]
	if !ok {
		l = &phaseLog{origins: mapset.NewThreadUnsafeSet()}
		s.logs[key] = l
	}
	if !l.origins.Add(p.Origin) {
		return false
	}
	if p.Content != nil {
		c := *p.Content
		p.Content = &c
		l.tally.add(c)
	}
	l.packets = append(l.packets, p)
	s.size++

	s.notify(key, len(l.packets))
	return true
}

// notify releases the waiters of key whose threshold is reached.
func (s *MessageStore) notify(key slotKey, count int) {
	ws := s.waiters[key]
	if len(ws) == 0 {
		return
	}
	pending := ws[:0]
	for _, w := range ws {
		if count >= w.threshold {
			close(w.ch)
			continue
		}
		pending = append(pending, w)
	}
	if len(pending) == 0 {
		delete(s.waiters, key)
		return
	}
	s.waiters[key] = pending
}

// Count returns the number of distinct origins recorded.
func (s *MessageStore) Count(iteration int, phase Phase) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.logs[slotKey{iteration, phase}]; ok {
		return len(l.packets)
	}
	return 0
}

func (s *MessageStore) Tally(iteration int, phase Phase) Tally {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.logs[slotKey{iteration, phase}]; ok {
		return l.tally
	}
	return Tally{}
}

// Packets returns a copy of the recorded packets in arrival order.
func (s *MessageStore) Packets(iteration int, phase Phase) []Packet {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[slotKey{iteration, phase}]
	if !ok {
		return nil
	}
	packets := make([]Packet, len(l.packets))
	copy(packets, l.packets)
	return packets
}

// Len returns the total number of recorded packets.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Await blocks until at least threshold distinct origins are
// recorded for the slot or ctx is done.
func (s *MessageStore) Await(ctx context.Context, iteration int, phase Phase, threshold int) error {
	key := slotKey{iteration, phase}

	s.mu.Lock()
	count := 0
	if l, ok := s.logs[key]; ok {
		count = len(l.packets)
	}
	if count >= threshold {
		s.mu.Unlock()
		return nil
	}
	w := &waiter{threshold: threshold, ch: make(chan struct{})}
	s.waiters[key] = append(s.waiters[key], w)
	s.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		s.cancel(key, w)
		return ctx.Err()
	}
}

func (s *MessageStore) cancel(key slotKey, w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.waiters[key]
	for i, x := range ws {
		if x == w {
			s.waiters[key] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(s.waiters[key]) == 0 {
		delete(s.waiters, key)
	}
}

// Seal freezes the store, later packets are rejected.
func (s *MessageStore) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}
