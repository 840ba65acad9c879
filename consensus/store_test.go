package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreIdempotence(t *testing.T) {
	s := NewMessageStore()

	assert.Equal(t, 0, s.Count(1, PhaseR))
	assert.Equal(t, Tally{}, s.Tally(1, PhaseR))
	assert.Nil(t, s.Packets(1, PhaseR))

	assert.True(t, s.Store(NewPacket(PhaseR, 0, 1, One)))
	// a later packet from the same origin never overwrites the first one
	assert.False(t, s.Store(NewPacket(PhaseR, 0, 1, Zero)))
	assert.False(t, s.Store(NewPacket(PhaseR, 0, 1, One)))

	assert.Equal(t, 1, s.Count(1, PhaseR))
	assert.Equal(t, Tally{One: 1}, s.Tally(1, PhaseR))
	packets := s.Packets(1, PhaseR)
	require.Len(t, packets, 1)
	assert.Equal(t, One, *packets[0].Content)

	// same origin in another phase or iteration is a different slot
	assert.True(t, s.Store(NewPacket(PhaseP, 0, 1, Abstain)))
	assert.True(t, s.Store(NewPacket(PhaseR, 0, 2, Zero)))
	assert.Equal(t, 3, s.Len())
}

func TestStoreTally(t *testing.T) {
	s := NewMessageStore()
	s.Store(NewPacket(PhaseP, 0, 1, Zero))
	s.Store(NewPacket(PhaseP, 1, 1, One))
	s.Store(NewPacket(PhaseP, 2, 1, Abstain))
	s.Store(NewPacket(PhaseP, 3, 1, One))
	// empty content counts as an origin but not as a vote
	s.Store(Packet{Phase: PhaseP, Origin: 4, Iteration: 1})

	assert.Equal(t, 5, s.Count(1, PhaseP))
	assert.Equal(t, Tally{Zero: 1, One: 2, Abstain: 1}, s.Tally(1, PhaseP))

	packets := s.Packets(1, PhaseP)
	require.Len(t, packets, 5)
	for i, p := range packets {
		assert.Equal(t, i, p.Origin)
	}
}

func TestStorePacketsIsCopy(t *testing.T) {
	s := NewMessageStore()
	v := One
	p := Packet{Phase: PhaseR, Origin: 0, Iteration: 1, Content: &v}
	s.Store(p)

	// mutating the caller's content does not reach the store
	v = Zero
	assert.Equal(t, Tally{One: 1}, s.Tally(1, PhaseR))

	packets := s.Packets(1, PhaseR)
	packets[0].Origin = 9
	assert.Equal(t, 0, s.Packets(1, PhaseR)[0].Origin)
}

func TestStoreAwait(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()

	// already satisfied
	require.NoError(t, s.Await(ctx, 1, PhaseR, 0))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Await(ctx, 1, PhaseR, 2)
	}()

	s.Store(NewPacket(PhaseR, 0, 1, One))
	// duplicates do not count towards the threshold
	s.Store(NewPacket(PhaseR, 0, 1, One))
	s.Store(NewPacket(PhaseP, 1, 1, One))
	select {
	case <-errCh:
		t.Fatal("await returned before threshold")
	case <-time.After(50 * time.Millisecond):
	}

	s.Store(NewPacket(PhaseR, 1, 1, Zero))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("await not released")
	}
}

func TestStoreAwaitCancel(t *testing.T) {
	s := NewMessageStore()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Await(ctx, 3, PhaseP, 3)
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("await not cancelled")
	}

	// the cancelled waiter is gone
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.waiters) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStoreSeal(t *testing.T) {
	s := NewMessageStore()
	s.Store(NewPacket(PhaseR, 0, 1, One))
	s.Seal()
	assert.False(t, s.Store(NewPacket(PhaseR, 1, 1, One)))
	assert.Equal(t, 1, s.Len())
}
