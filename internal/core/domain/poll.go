package domain

import "time"

// PollPolicy bounds a poll-until-ready loop: one warm-up delay, then at most
// MaxAttempts checks spaced by Interval.
type PollPolicy struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

func DefaultOCRPollPolicy() PollPolicy {
	return PollPolicy{
		InitialDelay: 10 * time.Second,
		Interval:     5 * time.Second,
		MaxAttempts:  20,
	}
}

// Budget is the worst-case wall time spent sleeping by a loop following p.
func (p PollPolicy) Budget() time.Duration {
	return p.InitialDelay + time.Duration(p.MaxAttempts)*p.Interval
}
