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
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is a vote of the binary agreement.
type Value uint8

const (
	Zero Value = iota
	One
	// Abstain is only meaningful as a proposal vote.
	Abstain
)

var abstainLiteral = []byte(`"?"`)

func (v Value) String() string {
	switch v {
	case Zero:
		return "0"
	case One:
		return "1"
	case Abstain:
		return "?"
	}
	return fmt.Sprintf("Value(%d)", uint8(v))
}

// Binary reports whether v is Zero or One.
func (v Value) Binary() bool {
	return v == Zero || v == One
}

func (v Value) valid() bool {
	return v <= Abstain
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v {
	case Zero:
		return []byte("0"), nil
	case One:
		return []byte("1"), nil
	case Abstain:
		return abstainLiteral, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidValue, uint8(v))
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("0")):
		*v = Zero
	case bytes.Equal(b, []byte("1")):
		*v = One
	case bytes.Equal(b, abstainLiteral):
		*v = Abstain
	default:
		return fmt.Errorf("%w: %s", ErrInvalidValue, string(b))
	}
	return nil
}

// ParseValue parses a binary value from its text form ("0" or "1").
func ParseValue(s string) (Value, error) {
	switch s {
	case "0":
		return Zero, nil
	case "1":
		return One, nil
	}
	return Abstain, fmt.Errorf("%w: %q is not a binary value", ErrInvalidValue, s)
}

// Phase is the round of an iteration a packet belongs to.
type Phase uint8

const (
	// PhaseR exchanges the current estimates.
	PhaseR Phase = iota + 1
	// PhaseP exchanges the proposals derived from phase R.
	PhaseP
)

func (p Phase) String() string {
	switch p {
	case PhaseR:
		return "R"
	case PhaseP:
		return "P"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

func (p Phase) MarshalJSON() ([]byte, error) {
	if p != PhaseR && p != PhaseP {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, uint8(p))
	}
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, string(b))
	}
	switch s {
	case "R":
		*p = PhaseR
	case "P":
		*p = PhaseP
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
	return nil
}

// Packet is the message exchanged between nodes. A nil Content
// stands for a vote without value and is counted nowhere.
type Packet struct {
	Phase     Phase  `json:"phase"`
	Origin    int    `json:"origin"`
	Iteration int    `json:"iteration"`
	Content   *Value `json:"content"`
}

// packetWire also accepts the legacy "type" key for the phase.
type packetWire struct {
	Phase     *Phase `json:"phase"`
	Type      *Phase `json:"type"`
	Origin    int    `json:"origin"`
	Iteration int    `json:"iteration"`
	Content   *Value `json:"content"`
}

func (p *Packet) UnmarshalJSON(b []byte) error {
	var w packetWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch {
	case w.Phase != nil:
		p.Phase = *w.Phase
	case w.Type != nil:
		p.Phase = *w.Type
	default:
		return fmt.Errorf("%w: missing phase", ErrUnknownPhase)
	}
	p.Origin = w.Origin
	p.Iteration = w.Iteration
	p.Content = w.Content
	return nil
}

// NewPacket builds a packet carrying the given vote.
func NewPacket(phase Phase, origin, iteration int, content Value) Packet {
	c := content
	return Packet{Phase: phase, Origin: origin, Iteration: iteration, Content: &c}
}

// Validate checks that the packet is well formed for a cluster
// of n nodes. The returned error wraps ErrMalformedPacket.
func (p Packet) Validate(n int) error {
	var cause error
	switch {
	case p.Phase != PhaseR && p.Phase != PhaseP:
		cause = ErrUnknownPhase
	case p.Iteration < 1:
		cause = ErrBadIteration
	case p.Origin < 0 || p.Origin >= n:
		cause = ErrBadOrigin
	case p.Content != nil && !p.Content.valid():
		cause = ErrInvalidValue
	case p.Content != nil && p.Phase == PhaseR && *p.Content == Abstain:
		cause = ErrAbstainInReport
	}
	if cause != nil {
		return fmt.Errorf("%w: %w (%s)", ErrMalformedPacket, cause, p)
	}
	return nil
}

func (p Packet) String() string {
	content := "nil"
	if p.Content != nil {
		content = p.Content.String()
	}
	return fmt.Sprintf("{%s k=%d origin=%d content=%s}", p.Phase, p.Iteration, p.Origin, content)
}

// NodeState is a snapshot of a node. Estimate and Iteration are
// nil for faulty nodes, Decided is always false for them.
type NodeState struct {
	Faulty    bool
	Killed    bool
	Decided   bool
	Estimate  *Value
	Iteration *int
}

// StartStatus is the outcome of a start request.
type StartStatus int

const (
	StartOK StartStatus = iota
	StartNotReady
	StartNotApplicable
)

func (s StartStatus) String() string {
	switch s {
	case StartOK:
		return "ok"
	case StartNotReady:
		return "not ready"
	case StartNotApplicable:
		return "not applicable"
	}
	return fmt.Sprintf("StartStatus(%d)", int(s))
}
