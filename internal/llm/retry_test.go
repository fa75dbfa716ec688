package llm

import (
	"testing"
	"time"
)

func TestPolicyTransition(t *testing.T) {
	p := defaultPolicy
	tests := []struct {
		outcome outcome
		attempt int
		want    state
	}{
		{outcomeOK, 1, stateSuccess},
		{outcomeOK, 6, stateSuccess},
		{outcomeRejected, 1, stateFatal},
		{outcomeTimeout, 1, stateBackoff},
		{outcomeTimeout, 2, stateBackoff},
		{outcomeTimeout, 3, stateExhausted},
		{outcomeTransport, 3, stateBackoff},
		{outcomeTransport, 5, stateBackoff},
		{outcomeTransport, 6, stateExhausted},
		{outcomeThrottled, 5, stateBackoff},
		{outcomeThrottled, 6, stateExhausted},
	}
	for _, tt := range tests {
		if got := p.transition(tt.outcome, tt.attempt); got != tt.want {
			t.Errorf("transition(%d, %d) = %s, want %s", tt.outcome, tt.attempt, got, tt.want)
		}
	}
}

func TestPolicyNextBackoff(t *testing.T) {
	p := defaultPolicy
	if got := p.nextBackoff(outcomeThrottled, 16*time.Second); got != 32*time.Second {
		t.Errorf("throttled 16s -> %v, want 32s", got)
	}
	if got := p.nextBackoff(outcomeThrottled, 32*time.Second); got != 32*time.Second {
		t.Errorf("throttled 32s -> %v, want 32s (capped)", got)
	}
	if got := p.nextBackoff(outcomeTransport, 32*time.Second); got != 64*time.Second {
		t.Errorf("transport 32s -> %v, want 64s (uncapped)", got)
	}
}

func TestPolicySleepFor(t *testing.T) {
	p := defaultPolicy
	if got := p.sleepFor(time.Second, 0); got != time.Second {
		t.Errorf("sleepFor(1s, 0) = %v, want 1s", got)
	}
	if got := p.sleepFor(time.Second, 0.999); got >= time.Second+250*time.Millisecond {
		t.Errorf("sleepFor(1s, ~1) = %v, want < 1.25s", got)
	}
	if got := p.sleepFor(0, 0); got != 500*time.Millisecond {
		t.Errorf("sleepFor(0, 0) = %v, want 500ms floor", got)
	}
}
