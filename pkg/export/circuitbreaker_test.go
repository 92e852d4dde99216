// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1700000000, 0)}
	b := NewBreaker(threshold, 30*time.Second)
	b.now = c.now
	return b, c
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	if !b.Allow() || b.State() != CircuitClosed {
		t.Fatal("new breaker should be closed")
	}

	b.Failure()
	b.Failure()
	if b.State() != CircuitClosed {
		t.Fatalf("opened below threshold: %v", b.State())
	}
	b.Failure()
	if b.State() != CircuitOpen || b.Allow() {
		t.Fatalf("state after threshold = %v", b.State())
	}
}

func TestBreakerProbe(t *testing.T) {
	tests := []struct {
		name    string
		succeed bool
		want    CircuitState
	}{
		{"probe succeeds", true, CircuitClosed},
		{"probe fails", false, CircuitOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, c := newTestBreaker(2)
			b.Failure()
			b.Failure()

			c.advance(29 * time.Second)
			if b.Allow() {
				t.Fatal("allowed before cooldown")
			}
			c.advance(time.Second)
			if !b.Allow() || b.State() != CircuitHalfOpen {
				t.Fatalf("state after cooldown = %v", b.State())
			}

			if tt.succeed {
				b.Success()
			} else {
				b.Failure()
			}
			if b.State() != tt.want {
				t.Errorf("state = %v, want %v", b.State(), tt.want)
			}
		})
	}
}

func TestBreakerSuccessResets(t *testing.T) {
	b, _ := newTestBreaker(5)
	b.Failure()
	b.Failure()
	b.Success()
	if b.Failures() != 0 || b.State() != CircuitClosed {
		t.Errorf("failures=%d state=%v", b.Failures(), b.State())
	}
}

func TestBreakerOnChange(t *testing.T) {
	b, c := newTestBreaker(1)
	var seen []string
	b.OnChange(func(from, to CircuitState) { seen = append(seen, from.String()+">"+to.String()) })

	b.Failure()
	c.advance(time.Minute)
	b.Allow()
	b.Success()

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
