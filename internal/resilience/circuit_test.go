package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = NewTransientError(errors.New("upstream 503"), 503)

func failN(t *testing.T, cb *CircuitBreaker, n int, err error) {
	t.Helper()
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return err })
	}
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("ai", DefaultCircuitBreakerConfig())

	calls := 0
	err := cb.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("ai", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	failN(t, cb, 3, errTransient)
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Error("should not be called when circuit is open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "ai")
}

func TestCircuitBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("extractor", CircuitBreakerConfig{FailureThreshold: 2})
	failN(t, cb, 5, NewPermanentError(errors.New("encrypted pdf"), "ENCRYPTED_PDF"))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("ai", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.now = func() time.Time { return now }

	failN(t, cb, 1, errTransient)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	val, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, val)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("ai", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.now = func() time.Time { return now }

	failN(t, cb, 1, errTransient)
	now = now.Add(11 * time.Second)
	failN(t, cb, 1, errTransient)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("ai", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	failN(t, cb, 1, errTransient)
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(7, 45)
	assert.Equal(t, 7, cfg.FailureThreshold)
	assert.Equal(t, 45*time.Second, cfg.ResetTimeout)

	def := FromCircuitConfig(0, 0)
	assert.Equal(t, DefaultCircuitBreakerConfig().FailureThreshold, def.FailureThreshold)
}
