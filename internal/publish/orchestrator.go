package publish

import (
	"context"
	"time"

	"github.com/mikequentel/socpost/internal/logger"
)

// Event is reported to observers after every publish attempt.
type Event struct {
	Platform Platform
	Strategy Strategy
	Request  PublishRequest
	Result   PublishResult
	Started  time.Time
	Duration time.Duration
}

// Observer receives publish events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObservePublish(ctx context.Context, ev Event)
}

// Orchestrator is the entry point for publishing and credential checks.
type Orchestrator struct {
	factory   Factory
	log       logger.Logger
	observers []Observer
	now       func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithObserver adds an observer notified after each publish.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithClock overrides the clock used for event timing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator builds an Orchestrator around a poster factory.
func NewOrchestrator(f Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{factory: f, log: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Plan validates req for p without touching the network.
func (o *Orchestrator) Plan(p Platform, req PublishRequest) (Plan, error) {
	plan, err := Select(p, req)
	if err != nil {
		return plan, asError(p, err)
	}
	return plan, nil
}

// Publish validates req, builds the platform poster and publishes. Every
// failure is returned inside the result, never as a Go error.
func (o *Orchestrator) Publish(ctx context.Context, p Platform, req PublishRequest) PublishResult {
	started := o.now()
	log := o.log.With("platform", string(p))

	plan, res := o.publish(ctx, p, req, log)
	if res.Success {
		log.Info("published", "strategy", string(plan.Strategy), "post_id", res.PostID, "media", len(plan.Media))
	} else {
		log.Error("publish failed", "strategy", string(plan.Strategy), "kind", string(res.Error.Kind), "error", res.Error.Error())
	}

	ev := Event{
		Platform: p,
		Strategy: plan.Strategy,
		Request:  req,
		Result:   res,
		Started:  started,
		Duration: o.now().Sub(started),
	}
	for _, obs := range o.observers {
		obs.ObservePublish(ctx, ev)
	}
	return res
}

func (o *Orchestrator) publish(ctx context.Context, p Platform, req PublishRequest, log logger.Logger) (Plan, PublishResult) {
	plan, err := Select(p, req)
	if err != nil {
		return plan, failed(p, plan.Strategy, err)
	}
	if plan.Dropped > 0 {
		log.Warn("media truncated to platform limit", "kept", len(plan.Media), "dropped", plan.Dropped)
	}

	poster, err := o.factory.New(logger.WithContext(ctx, log), p)
	if err != nil {
		return plan, failed(p, plan.Strategy, err)
	}
	id, err := poster.Publish(logger.WithContext(ctx, log), plan)
	if err != nil {
		return plan, failed(p, plan.Strategy, err)
	}
	return plan, PublishResult{Success: true, PostID: id, Strategy: plan.Strategy}
}

func failed(p Platform, s Strategy, err error) PublishResult {
	return PublishResult{Strategy: s, Error: asError(p, err)}
}

// CheckStatus verifies credentials for p. It performs read-only calls.
func (o *Orchestrator) CheckStatus(ctx context.Context, p Platform) Status {
	st := Status{Platform: p}
	log := o.log.With("platform", string(p))

	poster, err := o.factory.New(logger.WithContext(ctx, log), p)
	if err != nil {
		st.Error = asError(p, err).UserMessage()
		return st
	}
	id, err := poster.Verify(logger.WithContext(ctx, log))
	if err != nil {
		perr := asError(p, err)
		log.Warn("credential check failed", "error", perr.Error())
		st.Error = perr.UserMessage()
		return st
	}
	st.CredentialsValid = true
	st.AccountIdentity = id.String()
	return st
}

// CheckAll verifies every platform in display order.
func (o *Orchestrator) CheckAll(ctx context.Context) []Status {
	out := make([]Status, 0, len(Platforms))
	for _, p := range Platforms {
		out = append(out, o.CheckStatus(ctx, p))
	}
	return out
}
