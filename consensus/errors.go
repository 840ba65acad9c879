package consensus

import "errors"

var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrUnknownPhase    = errors.New("unknown phase")
	ErrBadIteration    = errors.New("iteration must be positive")
	ErrBadOrigin       = errors.New("origin out of range")
	ErrAbstainInReport = errors.New("abstain vote in phase R")
	ErrInvalidValue    = errors.New("invalid value")
)

var (
	ErrInvalidConfig = errors.New("invalid engine config")
	ErrNilTransport  = errors.New("transport is missing")
)
