// Package breaker isolates failing handlers behind a Closed/Open/HalfOpen state machine.
//
// The state machine itself is gobreaker's: consecutive failures trip it open,
// the first call after the recovery timeout probes in half-open, and
// SuccessThreshold consecutive probe successes close it again. Any half-open
// failure reopens it immediately.
package breaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// ErrOpen is matched by every rejection caused by an open or saturated half-open breaker.
var ErrOpen = errors.New("circuit breaker open")

// OpenError names the breaker that rejected the call.
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is %s", e.Name, e.State)
}

func (e *OpenError) Unwrap() error { return ErrOpen }

// Config holds the thresholds of a single breaker.
type Config struct {
	FailureThreshold uint32
	SuccessThreshold uint32
	RecoveryTimeout  time.Duration
}

// DefaultConfig returns thresholds suited to in-process handlers.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = d.RecoveryTimeout
	}
	return c
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithLogger reports state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

// WithStateListener is called on every transition, after logging.
func WithStateListener(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.listener = fn }
}

// Breaker protects one handler subscription or external call site.
type Breaker struct {
	cb       *gobreaker.CircuitBreaker
	name     string
	cfg      Config
	logger   *slog.Logger
	listener func(name string, from, to State)

	trips       atomic.Uint64
	rejected    atomic.Uint64
	lastFailure atomic.Int64
}

// New builds a breaker. Zero config fields fall back to DefaultConfig.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		cfg:    cfg.normalized(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: b.cfg.SuccessThreshold,
		Timeout:     b.cfg.RecoveryTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= b.cfg.FailureThreshold
		},
		OnStateChange: b.onStateChange,
	})
	return b
}

func (b *Breaker) onStateChange(name string, from, to State) {
	if to == StateOpen {
		b.trips.Add(1)
		b.logger.Warn("CIRCUIT_BREAKER_OPENED", "breaker", name, "from", from.String(), "recovery_timeout", b.cfg.RecoveryTimeout)
	} else {
		b.logger.Info("CIRCUIT_BREAKER_STATE_CHANGED", "breaker", name, "from", from.String(), "to", to.String())
	}
	if b.listener != nil {
		b.listener(name, from, to)
	}
}

// Execute runs fn unless the breaker rejects it.
// Rejections return an *OpenError; fn's own error is returned unchanged.
// A panic inside fn counts as a failure and is re-raised.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.rejected.Add(1)
		return &OpenError{Name: b.name, State: b.cb.State()}
	default:
		b.lastFailure.Store(time.Now().UnixNano())
		return err
	}
}

func (b *Breaker) Name() string { return b.name }

// State reports the current state, applying the recovery timeout lazily.
func (b *Breaker) State() State { return b.cb.State() }

// Snapshot is a point-in-time view for metrics.
type Snapshot struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	Requests            uint32    `json:"requests"`
	Trips               uint64    `json:"trips"`
	Rejected            uint64    `json:"rejected"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
}

func (b *Breaker) Snapshot() Snapshot {
	counts := b.cb.Counts()
	s := Snapshot{
		Name:                b.name,
		State:               b.cb.State().String(),
		ConsecutiveFailures: counts.ConsecutiveFailures,
		Requests:            counts.Requests,
		Trips:               b.trips.Load(),
		Rejected:            b.rejected.Load(),
	}
	if ns := b.lastFailure.Load(); ns != 0 {
		s.LastFailure = time.Unix(0, ns)
	}
	return s
}
