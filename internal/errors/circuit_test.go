package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) Now() time.Time { return f.t }

func TestCircuitBreaker_OpensAfterTransientFailures(t *testing.T) {
	clock := &fakeNow{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("completion", WithMaxFailures(2), WithResetTimeout(time.Minute), WithClock(clock.Now))
	transient := New(ErrCodeProviderUnavailable, "503", nil)

	for i := 0; i < 2; i++ {
		_, err := Execute(cb, func() (string, error) { return "", transient })
		assert.Same(t, transient, err)
	}
	require.Equal(t, StateOpen, cb.State())

	called := false
	_, err := Execute(cb, func() (string, error) { called = true; return "x", nil })

	assert.False(t, called)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeNow{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("completion", WithMaxFailures(1), WithResetTimeout(time.Minute), WithClock(clock.Now))
	transient := New(ErrCodeNetworkTimeout, "timeout", nil)

	_, _ = Execute(cb, func() (int, error) { return 0, transient })
	require.Equal(t, StateOpen, cb.State())

	// Given: the reset timeout elapsed
	clock.t = clock.t.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// When: the probe fails, the circuit reopens
	_, _ = Execute(cb, func() (int, error) { return 0, transient })
	assert.Equal(t, StateOpen, cb.State())

	// When: a later probe succeeds, the circuit closes
	clock.t = clock.t.Add(time.Minute)
	v, err := Execute(cb, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IgnoresRejectedRequests(t *testing.T) {
	cb := NewCircuitBreaker("completion", WithMaxFailures(1))

	_, err := Execute(cb, func() (string, error) {
		return "", New(ErrCodeProviderRejected, "400 bad request", nil)
	})
	require.Error(t, err)
	_, _ = Execute(cb, func() (string, error) { return "", errors.New("plain") })

	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
