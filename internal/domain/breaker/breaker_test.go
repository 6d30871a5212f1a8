package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func passing() error { return nil }

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, SuccessThreshold: 1, RecoveryTimeout: time.Minute})

	for range 3 {
		require.ErrorIs(t, b.Execute(failing), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, "test", openErr.Name)
	assert.False(t, called, "handler must not run while open")

	snap := b.Snapshot()
	assert.Equal(t, uint64(1), snap.Trips)
	assert.Equal(t, uint64(1), snap.Rejected)
	assert.False(t, snap.LastFailure.IsZero())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New("test", Config{FailureThreshold: 2, SuccessThreshold: 1, RecoveryTimeout: time.Minute})

	require.Error(t, b.Execute(failing))
	require.NoError(t, b.Execute(passing))
	require.Error(t, b.Execute(failing))

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	var transitions []State
	b := New("test",
		Config{FailureThreshold: 1, SuccessThreshold: 2, RecoveryTimeout: 30 * time.Millisecond},
		WithStateListener(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)

	require.Error(t, b.Execute(failing))
	require.Equal(t, StateOpen, b.State())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(passing))
	assert.Equal(t, StateHalfOpen, b.State(), "one success is below the threshold")

	require.NoError(t, b.Execute(passing))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})

	require.Error(t, b.Execute(failing))
	time.Sleep(40 * time.Millisecond)

	require.ErrorIs(t, b.Execute(failing), errBoom)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Execute(passing), ErrOpen)
	assert.Equal(t, uint64(2), b.Snapshot().Trips)
}

func TestDefaultsApplyToZeroConfig(t *testing.T) {
	b := New("zero", Config{})
	assert.Equal(t, DefaultConfig(), b.cfg)
}
