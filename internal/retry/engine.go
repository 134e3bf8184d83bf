package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/transport"
)

// RateLimitMode selects how rate-limit responses consume the attempt budget.
type RateLimitMode int

const (
	// UntilReset waits for the platform-reported reset and does not count
	// the wait against MaxAttempts (bounded by MaxRateLimitWaits).
	UntilReset RateLimitMode = iota
	// Counted waits the same way but each rate-limited attempt consumes
	// one of MaxAttempts.
	Counted
)

// Policy configures an Engine.
type Policy struct {
	MaxAttempts       int
	BackoffUnit       time.Duration
	RateLimit         RateLimitMode
	RateLimitFallback time.Duration
	MaxRateLimitWaits int
}

// DefaultPolicy mirrors the Twitter behaviour: three attempts, 3s linear
// backoff, wait until reset on rate limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BackoffUnit:       3 * time.Second,
		RateLimit:         UntilReset,
		RateLimitFallback: 15 * time.Minute,
		MaxRateLimitWaits: 3,
	}
}

// Attempt describes a failed try that will be retried.
type Attempt struct {
	Op      string
	Number  int
	Wait    time.Duration
	Err     error
	Limited bool
}

// Engine runs operations with bounded retries, differentiating rate limits,
// connection failures and terminal client errors.
type Engine struct {
	policy  Policy
	log     logger.Logger
	now     func() time.Time
	onRetry func(Attempt)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for retry notices.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the clock used to compute rate-limit waits.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRetryHook registers a callback invoked before every retry wait.
func WithRetryHook(fn func(Attempt)) Option {
	return func(e *Engine) {
		e.onRetry = fn
	}
}

// New builds an Engine. Zero policy fields take DefaultPolicy values.
func New(p Policy, opts ...Option) *Engine {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BackoffUnit <= 0 {
		p.BackoffUnit = def.BackoffUnit
	}
	if p.RateLimitFallback <= 0 {
		p.RateLimitFallback = def.RateLimitFallback
	}
	if p.MaxRateLimitWaits <= 0 {
		p.MaxRateLimitWaits = def.MaxRateLimitWaits
	}
	e := &Engine{policy: p, log: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's effective policy.
func (e *Engine) Policy() Policy { return e.policy }

type failureClass int

const (
	classTerminal failureClass = iota
	classConnection
	classRateLimit
)

func classify(err error) (failureClass, *transport.Error) {
	var terr *transport.Error
	if !errors.As(err, &terr) {
		return classTerminal, nil
	}
	switch {
	case terr.RateLimited():
		return classRateLimit, terr
	case terr.Temporary():
		return classConnection, terr
	default:
		return classTerminal, terr
	}
}

// Do runs fn until it succeeds, fails terminally, or the budget is spent.
// On exhaustion the last observed error is returned.
func (e *Engine) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var (
		counted   int
		limited   int
		lastClass failureClass
		lastTErr  *transport.Error
		lastErr   error
	)

	backoff := goretry.BackoffFunc(func() (time.Duration, bool) {
		var wait time.Duration
		switch lastClass {
		case classRateLimit:
			limited++
			if e.policy.RateLimit == Counted {
				counted++
				if counted >= e.policy.MaxAttempts {
					return 0, true
				}
			} else if limited > e.policy.MaxRateLimitWaits {
				return 0, true
			}
			wait = e.rateLimitWait(lastTErr)
		default:
			counted++
			if counted >= e.policy.MaxAttempts {
				return 0, true
			}
			wait = time.Duration(counted) * e.policy.BackoffUnit
		}
		a := Attempt{Op: op, Number: counted + 1, Wait: wait, Err: lastErr, Limited: lastClass == classRateLimit}
		if a.Limited {
			e.log.Warn("rate limited, waiting for reset", "op", op, "wait", wait.String())
		} else {
			e.log.Warn("transient failure, retrying", "op", op, "attempt", a.Number, "max", e.policy.MaxAttempts, "wait", wait.String(), "error", lastErr)
		}
		if e.onRetry != nil {
			e.onRetry(a)
		}
		return wait, false
	})

	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		lastClass, lastTErr = classify(err)
		if lastClass == classTerminal {
			return err
		}
		return goretry.RetryableError(err)
	})
	if err != nil && lastClass != classTerminal && errors.Is(err, lastErr) {
		e.log.Error("operation failed after retries", "op", op, "attempts", counted, "error", err)
	}
	return err
}

func (e *Engine) rateLimitWait(terr *transport.Error) time.Duration {
	if terr != nil && !terr.ResetAt.IsZero() {
		wait := terr.ResetAt.Sub(e.now())
		if wait < 0 {
			return 0
		}
		return wait
	}
	return e.policy.RateLimitFallback
}
