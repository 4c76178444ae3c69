package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerOptions configures a CircuitBreaker. Zero fields take defaults.
type BreakerOptions struct {
	// FailureThreshold consecutive failures open the circuit (default 5).
	FailureThreshold int
	// SuccessThreshold successful probes close it again (default 2).
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before probing (default 30s).
	Cooldown time.Duration
}

// CircuitBreaker guards calls to the API from the front-end. While half-open
// only one probe is in flight at a time.
type CircuitBreaker struct {
	opt BreakerOptions

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
	probing   bool

	// OnStateChange is called with the lock held; it must not call back
	// into the breaker.
	OnStateChange func(from, to CircuitState)
}

func NewCircuitBreaker(opt BreakerOptions) *CircuitBreaker {
	if opt.FailureThreshold <= 0 {
		opt.FailureThreshold = 5
	}
	if opt.SuccessThreshold <= 0 {
		opt.SuccessThreshold = 2
	}
	if opt.Cooldown <= 0 {
		opt.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{opt: opt}
}

// RetryIn returns how long the circuit stays open, or zero when a call
// would be let through.
func (cb *CircuitBreaker) RetryIn() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return 0
	}
	return max(cb.opt.Cooldown-time.Since(cb.openedAt), 0)
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed. After the cooldown the first
// caller becomes the half-open probe; others are rejected until it reports.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.openedAt) < cb.opt.Cooldown {
			return false
		}
		cb.transition(CircuitHalfOpen)
		cb.probing = true
		return true
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != CircuitHalfOpen {
		return
	}
	cb.probing = false
	cb.successes++
	if cb.successes >= cb.opt.SuccessThreshold {
		cb.transition(CircuitClosed)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.trip()
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.opt.FailureThreshold {
			cb.trip()
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = time.Now()
	cb.probing = false
	cb.transition(CircuitOpen)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures, cb.successes = 0, 0
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

// CircuitBreakerMiddleware rejects requests while cb is open. Handlers
// behind it report the outcome of their upstream call with RecordSuccess
// and RecordFailure.
func CircuitBreakerMiddleware(cb *CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if wait := cb.RetryIn(); wait > 0 {
			RespondErrorWithRetry(c, http.StatusServiceUnavailable, ErrCodeCircuitOpen,
				"The API is temporarily unavailable due to repeated failures",
				int(wait.Milliseconds())+1)
			return
		}
		c.Next()
	}
}
