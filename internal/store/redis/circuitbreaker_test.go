package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFail = errors.New("fail")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int) (*CircuitBreaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(max, 10*time.Second)
	cb.now = c.now
	return cb, c
}

func trip(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errFail })
	}
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3)
	assert.Equal(t, StateClosed, cb.CurrentState())
	assert.Equal(t, "closed", cb.CurrentState().String())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errFail }), errFail)
	}
	assert.Equal(t, StateOpen, cb.CurrentState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, c := newTestBreaker(2)
	trip(cb, 2)
	require.Equal(t, StateOpen, cb.CurrentState())

	c.advance(9 * time.Second)
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	c.advance(2 * time.Second)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.CurrentState())
	assert.Zero(t, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb, c := newTestBreaker(2)
	trip(cb, 2)
	c.advance(11 * time.Second)
	trip(cb, 1)
	assert.Equal(t, StateOpen, cb.CurrentState())

	// reopening restarts the timeout
	c.advance(5 * time.Second)
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_SingleTrial(t *testing.T) {
	cb, c := newTestBreaker(1)
	trip(cb, 1)
	c.advance(11 * time.Second)

	inner := make(chan error, 1)
	err := cb.Execute(func() error {
		// a second caller while the trial call is in flight is rejected
		inner <- cb.Execute(func() error { return nil })
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, <-inner, ErrCircuitOpen)
	assert.Equal(t, StateClosed, cb.CurrentState())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3)
	trip(cb, 2)
	assert.Equal(t, 2, cb.Failures())
	require.NoError(t, cb.Execute(func() error { return nil }))
	trip(cb, 2)
	assert.Equal(t, StateClosed, cb.CurrentState())
}

func TestCircuitBreaker_IgnoresCallerCancellation(t *testing.T) {
	cb, _ := newTestBreaker(1)
	err := cb.Execute(func() error { return fmt.Errorf("get: %w", context.Canceled) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.CurrentState())
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	cb, c := newTestBreaker(1)
	var transitions []State
	cb.OnStateChange = func(from, to State) { transitions = append(transitions, to) }

	trip(cb, 1)
	assert.Equal(t, []State{StateOpen}, transitions)

	c.advance(11 * time.Second)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}
