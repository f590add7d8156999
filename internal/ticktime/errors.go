package ticktime

import "errors"

var (
	// ErrMinTickReached is returned when subtracting below tick zero.
	ErrMinTickReached = errors.New("minimum tick reached")

	// ErrMaxTickReached is returned when an addition would wrap the tick
	// counter.
	ErrMaxTickReached = errors.New("maximum tick reached")
)
