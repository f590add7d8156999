package challenge

import "errors"

var (
	ErrChallengesQueueOverflow         = errors.New("challenges queue overflow")
	ErrPriorityChallengesQueueOverflow = errors.New("priority challenges queue overflow")
)
