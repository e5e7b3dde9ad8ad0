package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"sync"
	"time"
)

// Policy describes exponential backoff between attempts.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (0 = infinite).
	MaxAttempts int
	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration
	// MaxDelay caps the delay.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
	// Jitter adds randomness to delays (0-1).
	Jitter float64
}

// DefaultPolicy returns the policy used for engine restarts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  0,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Delay returns the wait after the given number of consecutive failures.
func (p Policy) Delay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(mult, float64(failures-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		jitter := delay * p.Jitter
		// Random value between -jitter and +jitter using crypto/rand
		if maxJitter := int64(jitter * 2); maxJitter > 0 {
			if n, err := rand.Int(rand.Reader, big.NewInt(maxJitter)); err == nil {
				delay += float64(n.Int64()) - jitter
			}
		}
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Run returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Run calls fn until it succeeds, the policy runs out of attempts, ctx ends,
// or fn returns a Permanent error. onRetry, if set, is told about each wait.
func Run(ctx context.Context, p Policy, fn func(context.Context) error, onRetry func(attempt int, delay time.Duration, err error)) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		attempt++
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return err
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Cooldown refuses new attempts for a backoff delay after each failure, so a
// broken resource is not hammered by callers that retry on every request.
type Cooldown struct {
	policy Policy
	now    func() time.Time

	mu       sync.Mutex
	failures int
	until    time.Time
	lastErr  error
}

// NewCooldown creates a Cooldown driven by p.
func NewCooldown(p Policy) *Cooldown {
	return &Cooldown{policy: p, now: time.Now}
}

// Allow reports whether an attempt may be made now. While cooling down it
// returns false and the error of the last failed attempt.
func (c *Cooldown) Allow() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 && c.now().Before(c.until) {
		return false, c.lastErr
	}
	return true, nil
}

// Failure records a failed attempt and returns how long new attempts are refused.
func (c *Cooldown) Failure(err error) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.lastErr = err
	d := c.policy.Delay(c.failures)
	c.until = c.now().Add(d)
	return d
}

// Success clears the failure history.
func (c *Cooldown) Success() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.lastErr = nil
	c.until = time.Time{}
}

// Failures returns the number of consecutive failures.
func (c *Cooldown) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Remaining returns how long until the next attempt is allowed.
func (c *Cooldown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures == 0 {
		return 0
	}
	if d := c.until.Sub(c.now()); d > 0 {
		return d
	}
	return 0
}
