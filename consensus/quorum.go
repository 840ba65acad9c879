package consensus

// Tally counts the votes of one phase by value. Packets without
// content are not counted.
type Tally struct {
	Zero    int
	One     int
	Abstain int
}

// Of returns the count for value v.
func (t Tally) Of(v Value) int {
	switch v {
	case Zero:
		return t.Zero
	case One:
		return t.One
	case Abstain:
		return t.Abstain
	}
	return 0
}

func (t *Tally) add(v Value) {
	switch v {
	case Zero:
		t.Zero++
	case One:
		t.One++
	case Abstain:
		t.Abstain++
	}
}

// Outcome is what a node does with its estimate at the end of an
// iteration.
type Outcome int

const (
	// OutcomeDecide locks the value in as the final decision.
	OutcomeDecide Outcome = iota
	// OutcomeAdopt carries the value over to the next iteration.
	OutcomeAdopt
	// OutcomeFlip draws the next estimate from the coin.
	OutcomeFlip
)

// binaries lists the values eligible for a decision, in order of
// preference on ties.
var binaries = [...]Value{Zero, One}

// Quorum evaluates the thresholds of a cluster of n nodes with at
// most f faulty ones. Safety additionally requires n > 3f, which
// is not checked here.
type Quorum struct {
	n int
	f int
}

func NewQuorum(n, f int) Quorum {
	return Quorum{n: n, f: f}
}

func (q Quorum) N() int { return q.n }
func (q Quorum) F() int { return q.f }

// Response is the number of distinct origins closing a phase.
func (q Quorum) Response() int {
	return q.n - q.f
}

// IsMajority reports count > n/2.
func (q Quorum) IsMajority(count int) bool {
	return 2*count > q.n
}

// IsValid reports count >= f+1.
func (q Quorum) IsValid(count int) bool {
	return count >= q.f+1
}

// IsPossible reports count >= 1.
func (q Quorum) IsPossible(count int) bool {
	return count >= 1
}

// Safe reports whether the cluster size tolerates f faults.
func (q Quorum) Safe() bool {
	return q.n > 3*q.f
}

// Proposal converts a phase R tally into the phase P vote.
func (q Quorum) Proposal(t Tally) Value {
	for _, v := range binaries {
		if q.IsMajority(t.Of(v)) {
			return v
		}
	}
	return Abstain
}

// Resolve converts a phase P tally into the outcome of the
// iteration. The returned value is Abstain for OutcomeFlip.
func (q Quorum) Resolve(t Tally) (Value, Outcome) {
	for _, v := range binaries {
		if q.IsValid(t.Of(v)) {
			return v, OutcomeDecide
		}
	}
	for _, v := range binaries {
		if q.IsPossible(t.Of(v)) {
			return v, OutcomeAdopt
		}
	}
	return Abstain, OutcomeFlip
}
