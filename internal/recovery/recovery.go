// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package recovery classifies failures and drives bounded recovery as
// an explicit state machine, so attempt limits and partial-result
// preservation stay independently testable.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/resource"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/source"
)

// Class buckets a failure for strategy lookup.
type Class string

const (
	ClassNetwork    Class = "network"
	ClassTimeout    Class = "timeout"
	ClassValidation Class = "validation"
	ClassResource   Class = "resource"
)

// State is one node of the per-attempt state machine:
// Attempting → Succeeded, or
// Attempting → Failed → (Recovering → Attempting)* → Recovered | Unrecoverable.
type State string

const (
	StateAttempting    State = "attempting"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
	StateRecovering    State = "recovering"
	StateRecovered     State = "recovered"
	StateUnrecoverable State = "unrecoverable"
)

// Strategy performs one recovery step (typically a bounded wait) before
// the operation is re-attempted.
type Strategy func(ctx context.Context, attempt int) error

// Failure is the terminal error of an unrecoverable operation.
type Failure struct {
	Class    Class
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("unrecoverable %s failure after %d attempt(s): %v", f.Class, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Stats are process-wide recovery counters, exposed to callers for
// observability but owned here.
type Stats struct {
	Total         int `json:"total"`
	Recovered     int `json:"recovered"`
	Unrecoverable int `json:"unrecoverable"`
}

// Coordinator looks up recovery strategies by failure class and bounds
// the attempts. Safe for concurrent use across requests.
type Coordinator struct {
	maxAttempts int
	strategies  map[Class]Strategy

	mu    sync.Mutex
	stats Stats
	state State
}

// NewCoordinator builds a coordinator with the default strategies:
// backoff-then-retry for network and timeout failures, none for
// validation and resource failures (those cannot be retried into
// correctness). A non-positive maxAttempts uses the default (3).
func NewCoordinator(maxAttempts int, backoff time.Duration) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	wait := func(ctx context.Context, attempt int) error {
		d := backoff * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	}

	return &Coordinator{
		maxAttempts: maxAttempts,
		strategies: map[Class]Strategy{
			ClassNetwork: wait,
			ClassTimeout: wait,
		},
		state: StateAttempting,
	}
}

// SetStrategy overrides the strategy for one class. A nil strategy
// makes the class unrecoverable.
func (c *Coordinator) SetStrategy(class Class, s Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == nil {
		delete(c.strategies, class)
		return
	}
	c.strategies[class] = s
}

// Classify maps an error into the failure taxonomy.
func Classify(err error) Class {
	if errors.Is(err, resource.ErrBudgetExceeded) {
		return ClassResource
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var fe *source.FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case source.FailureTimeout:
			return ClassTimeout
		case source.FailureMalformedResponse:
			return ClassValidation
		case source.FailureConnectivity, source.FailureUpstreamRateLimit:
			return ClassNetwork
		}
	}
	return ClassValidation
}

// Execute runs op under the state machine. On failure it classifies,
// looks up a strategy, and re-attempts up to the bound; a success after
// recovery resumes normal flow. The terminal error is a *Failure
// carrying the class and attempt count — the caller owns whatever
// partial output it accumulated and must attach it to its error event.
func (c *Coordinator) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	c.setState(StateAttempting)

	var lastErr error
	attempts := 0
	for attempt := 0; ; attempt++ {
		attempts = attempt + 1
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt == 0 {
				c.setState(StateSucceeded)
			} else {
				c.setState(StateRecovered)
				c.bump(func(s *Stats) { s.Recovered++ })
			}
			return nil
		}

		if errors.Is(lastErr, context.Canceled) {
			// The caller walked away mid-attempt. That is not a
			// failure of the operation, so the stats stay untouched.
			c.setState(StateFailed)
			return lastErr
		}

		c.setState(StateFailed)
		c.bump(func(s *Stats) { s.Total++ })

		class := Classify(lastErr)
		strategy := c.strategy(class)
		if strategy == nil || attempt >= c.maxAttempts-1 {
			break
		}

		c.setState(StateRecovering)
		if err := strategy(ctx, attempt); err != nil {
			// Cancelled mid-recovery: give up immediately.
			lastErr = err
			break
		}
		c.setState(StateAttempting)
	}

	c.setState(StateUnrecoverable)
	c.bump(func(s *Stats) { s.Unrecoverable++ })
	return &Failure{Class: Classify(lastErr), Attempts: attempts, Err: lastErr}
}

func (c *Coordinator) strategy(class Class) Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strategies[class]
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// CurrentState reports the last observed machine state.
func (c *Coordinator) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) bump(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

// Snapshot returns a copy of the process-wide counters.
func (c *Coordinator) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
