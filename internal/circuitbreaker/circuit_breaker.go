package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	Name        string
	MaxFailures int
	// OpenTimeout is how long the breaker stays open before letting probe
	// calls through.
	OpenTimeout time.Duration
	// MaxProbes caps concurrent calls while half-open.
	MaxProbes     int
	OnStateChange func(name string, from, to State)
}

// Snapshot is a point-in-time view used by health checks.
type Snapshot struct {
	Name           string    `json:"name"`
	State          string    `json:"state"`
	Failures       int       `json:"failures"`
	TotalCalls     int64     `json:"total_calls"`
	TotalFailures  int64     `json:"total_failures"`
	TotalRejected  int64     `json:"total_rejected"`
	LastFailure    time.Time `json:"last_failure,omitempty"`
	LastTransition time.Time `json:"last_transition,omitempty"`
}

// CircuitBreaker guards calls to a remote dependency such as the payment
// provider. Calls abandoned by the caller's context do not count as failures.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	openTimeout   time.Duration
	maxProbes     int
	onStateChange func(name string, from, to State)

	mu             sync.Mutex
	state          State
	failures       int
	probes         int
	openedAt       time.Time
	lastFailure    time.Time
	lastTransition time.Time
	totalCalls     int64
	totalFailures  int64
	totalRejected  int64

	now    func() time.Time
	logger *logrus.Logger
}

func New(config Config, logger *logrus.Logger) *CircuitBreaker {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	if config.MaxFailures <= 0 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": config.Name,
			"invalid_value":   config.MaxFailures,
		}).Warn("Invalid MaxFailures, using 5")
		config.MaxFailures = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if config.MaxProbes <= 0 {
		config.MaxProbes = 1
	}

	return &CircuitBreaker{
		name:          config.Name,
		maxFailures:   config.MaxFailures,
		openTimeout:   config.OpenTimeout,
		maxProbes:     config.MaxProbes,
		onStateChange: config.OnStateChange,
		state:         StateClosed,
		now:           time.Now,
		logger:        logger,
	}
}

// Execute runs fn unless the breaker is open. The breaker's own rejection is
// returned as ErrOpen; fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.before()
	if err != nil {
		return err
	}

	err = fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe && cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
	switch {
	case err == nil:
		cb.onSuccess()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// The caller gave up; that says nothing about the dependency.
	default:
		cb.onFailure()
	}
	return err
}

// before admits or rejects a call and reports whether it is a half-open probe.
func (cb *CircuitBreaker) before() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.openTimeout {
			cb.totalRejected++
			return false, ErrOpen
		}
		cb.setState(StateHalfOpen)
	}
	probe := false
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.maxProbes {
			cb.totalRejected++
			return false, ErrOpen
		}
		cb.probes++
		probe = true
	}
	cb.totalCalls++
	return probe, nil
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.totalFailures++
	cb.lastFailure = cb.now()

	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.maxFailures) {
		cb.openedAt = cb.now()
		cb.setState(StateOpen)
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.probes = 0
	cb.lastTransition = cb.now()

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"from_state":      from.String(),
		"to_state":        to.String(),
	}).Info("Circuit breaker state changed")

	if cb.onStateChange != nil {
		go cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	defer func() {
		if r := recover(); r != nil {
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"panic":           r,
			}).Error("Circuit breaker state change callback panicked")
		}
	}()
	cb.onStateChange(cb.name, from, to)
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:           cb.name,
		State:          cb.state.String(),
		Failures:       cb.failures,
		TotalCalls:     cb.totalCalls,
		TotalFailures:  cb.totalFailures,
		TotalRejected:  cb.totalRejected,
		LastFailure:    cb.lastFailure,
		LastTransition: cb.lastTransition,
	}
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failures = 0
}

func (cb *CircuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return fmt.Sprintf("CircuitBreaker(name=%s, state=%s, failures=%d/%d)",
		cb.name, cb.state, cb.failures, cb.maxFailures)
}
