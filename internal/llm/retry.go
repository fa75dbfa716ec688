package llm

import (
	"context"
	"time"
)

type state int

const (
	stateAttempt state = iota
	stateBackoff
	stateSuccess
	stateFatal
	stateExhausted
)

func (s state) String() string {
	switch s {
	case stateAttempt:
		return "attempt"
	case stateBackoff:
		return "backoff"
	case stateSuccess:
		return "success"
	case stateFatal:
		return "fatal"
	case stateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// outcome classifies how a single attempt ended.
type outcome int

const (
	outcomeOK        outcome = iota
	outcomeTimeout           // network-level timeout
	outcomeTransport         // connection refused, reset, DNS, ...
	outcomeThrottled         // 429 or 5xx
	outcomeRejected          // non-retryable status or unusable body
)

// policy holds the retry limits. attempt counts are 1-based and global
// across outcome kinds.
type policy struct {
	MaxAttempts        int
	MaxTimeoutAttempts int
	InitialBackoff     time.Duration
	MaxThrottleBackoff time.Duration
	Jitter             time.Duration
	MinSleep           time.Duration
}

var defaultPolicy = policy{
	MaxAttempts:        6,
	MaxTimeoutAttempts: 3,
	InitialBackoff:     time.Second,
	MaxThrottleBackoff: 32 * time.Second,
	Jitter:             250 * time.Millisecond,
	MinSleep:           500 * time.Millisecond,
}

// transition maps (outcome, attempts made) to the next state.
func (p policy) transition(o outcome, attempt int) state {
	switch o {
	case outcomeOK:
		return stateSuccess
	case outcomeRejected:
		return stateFatal
	case outcomeTimeout:
		if attempt >= p.MaxTimeoutAttempts {
			return stateExhausted
		}
	}
	if attempt >= p.MaxAttempts {
		return stateExhausted
	}
	return stateBackoff
}

// nextBackoff doubles the current delay. Throttling responses cap it.
func (p policy) nextBackoff(o outcome, cur time.Duration) time.Duration {
	next := cur * 2
	if o == outcomeThrottled && next > p.MaxThrottleBackoff {
		next = p.MaxThrottleBackoff
	}
	return next
}

// sleepFor applies jitter (a fraction in [0,1)) and the floor.
func (p policy) sleepFor(base time.Duration, jitter float64) time.Duration {
	d := base + time.Duration(jitter*float64(p.Jitter))
	return max(d, p.MinSleep)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
