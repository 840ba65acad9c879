package consensus

import (
	crand "crypto/rand"
	"math/rand"
	"sync"
)

// Coin is the source of random estimates used when an iteration
// ends without any binary proposal.
type Coin interface {
	Flip() Value
}

// CoinFunc adapts a function to the Coin interface.
type CoinFunc func() Value

func (f CoinFunc) Flip() Value { return f() }

// FixedCoin always returns v.
func FixedCoin(v Value) Coin {
	return CoinFunc(func() Value { return v })
}

type cryptoCoin struct{}

// NewCryptoCoin returns a coin backed by the system entropy source.
func NewCryptoCoin() Coin {
	return cryptoCoin{}
}

func (cryptoCoin) Flip() Value {
	var b [1]byte
	// crypto/rand.Read never returns an error since go1.24
	_, _ = crand.Read(b[:])
	return Value(b[0] & 1)
}

type seededCoin struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSeededCoin returns a deterministic coin for reproducible runs.
func NewSeededCoin(seed int64) Coin {
	return &seededCoin{rnd: rand.New(rand.NewSource(seed))}
}

func (c *seededCoin) Flip() Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Value(c.rnd.Intn(2))
}
