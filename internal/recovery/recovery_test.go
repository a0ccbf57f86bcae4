// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/resource"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/source"
)

func fastCoordinator(maxAttempts int) *Coordinator {
	return NewCoordinator(maxAttempts, time.Millisecond)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"budget", resource.ErrBudgetExceeded, ClassResource},
		{"wrapped budget", fmt.Errorf("tracking: %w", resource.ErrBudgetExceeded), ClassResource},
		{"deadline", context.DeadlineExceeded, ClassTimeout},
		{"fetch timeout", &source.FetchError{Kind: source.FailureTimeout, Err: errors.New("t")}, ClassTimeout},
		{"fetch malformed", &source.FetchError{Kind: source.FailureMalformedResponse, Err: errors.New("m")}, ClassValidation},
		{"fetch connectivity", &source.FetchError{Kind: source.FailureConnectivity, Err: errors.New("c")}, ClassNetwork},
		{"fetch rate limit", &source.FetchError{Kind: source.FailureUpstreamRateLimit, Err: errors.New("r")}, ClassNetwork},
		{"anything else", errors.New("bad field"), ClassValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestExecuteImmediateSuccess(t *testing.T) {
	c := fastCoordinator(3)

	err := c.Execute(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, c.CurrentState())
	assert.Equal(t, Stats{}, c.Snapshot())
}

func TestExecuteRecoversWithinBound(t *testing.T) {
	c := fastCoordinator(3)

	calls := 0
	err := c.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &source.FetchError{Kind: source.FailureConnectivity, Err: errors.New("http 500")}
		}
		return nil
	})

	require.NoError(t, err, "retry within max_recovery_attempts must succeed")
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateRecovered, c.CurrentState())

	stats := c.Snapshot()
	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, 0, stats.Unrecoverable)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	c := fastCoordinator(3)

	calls := 0
	err := c.Execute(context.Background(), func(context.Context) error {
		calls++
		return &source.FetchError{Kind: source.FailureConnectivity, Err: errors.New("down")}
	})

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, ClassNetwork, f.Class)
	assert.Equal(t, 3, f.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, StateUnrecoverable, c.CurrentState())
	assert.Equal(t, 1, c.Snapshot().Unrecoverable)
}

func TestExecuteValidationIsNotRetried(t *testing.T) {
	c := fastCoordinator(3)

	calls := 0
	err := c.Execute(context.Background(), func(context.Context) error {
		calls++
		return &source.FetchError{Kind: source.FailureMalformedResponse, Err: errors.New("bad json")}
	})

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, ClassValidation, f.Class)
	assert.Equal(t, 1, calls, "validation failures have no strategy")
	assert.Equal(t, 1, f.Attempts)
}

func TestExecuteResourceIsNotRetried(t *testing.T) {
	c := fastCoordinator(3)

	calls := 0
	err := c.Execute(context.Background(), func(context.Context) error {
		calls++
		return resource.ErrBudgetExceeded
	})

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, ClassResource, f.Class)
	assert.Equal(t, 1, calls)
}

func TestExecuteCancelledDuringRecovery(t *testing.T) {
	c := NewCoordinator(3, time.Hour) // strategy wait far exceeds the ctx

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := c.Execute(ctx, func(context.Context) error {
		calls++
		return &source.FetchError{Kind: source.FailureConnectivity, Err: errors.New("down")}
	})

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, 1, calls, "cancellation mid-recovery must not re-attempt")
}

func TestExecuteCancelledAttemptNotCounted(t *testing.T) {
	c := fastCoordinator(3)

	calls := 0
	err := c.Execute(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("fetch aborted: %w", context.Canceled)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var f *Failure
	assert.False(t, errors.As(err, &f), "an abandoned attempt is not an operation failure")
	assert.Equal(t, 1, calls)

	stats := c.Snapshot()
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, stats.Unrecoverable)
}

func TestSetStrategyOverride(t *testing.T) {
	c := fastCoordinator(3)

	// A custom strategy makes validation recoverable.
	recoveries := 0
	c.SetStrategy(ClassValidation, func(context.Context, int) error {
		recoveries++
		return nil
	})

	calls := 0
	err := c.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient validation issue")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, recoveries)

	// Removing the network strategy makes network failures terminal.
	c.SetStrategy(ClassNetwork, nil)
	err = c.Execute(context.Background(), func(context.Context) error {
		return &source.FetchError{Kind: source.FailureConnectivity, Err: errors.New("down")}
	})
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, 1, f.Attempts)
}

func TestStatsAccumulateAcrossOperations(t *testing.T) {
	c := fastCoordinator(2)

	// One recovered, one unrecoverable.
	calls := 0
	_ = c.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &source.FetchError{Kind: source.FailureConnectivity, Err: errors.New("x")}
		}
		return nil
	})
	_ = c.Execute(context.Background(), func(context.Context) error {
		return &source.FetchError{Kind: source.FailureConnectivity, Err: errors.New("y")}
	})

	stats := c.Snapshot()
	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, 1, stats.Unrecoverable)
	assert.Equal(t, 3, stats.Total, "every failed attempt counts")
}
