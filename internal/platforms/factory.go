// Package platforms builds a publish.Poster for each supported platform
// from loaded configuration.
package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/facebook"
	"github.com/mikequentel/socpost/internal/instagram"
	"github.com/mikequentel/socpost/internal/linkedin"
	"github.com/mikequentel/socpost/internal/linkpreview"
	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/mediahost"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/retry"
	"github.com/mikequentel/socpost/internal/transport"
	"github.com/mikequentel/socpost/internal/twitter"
)

// Factory constructs a fresh Poster per call. Credentials are checked at
// construction, so a missing key only affects its own platform.
type Factory struct {
	cfg        *config.Config
	httpClient *http.Client
	retryHook  func(retry.Attempt)
}

var _ publish.Factory = (*Factory)(nil)

// Option configures a Factory.
type Option func(*Factory)

// WithHTTPClient sets the base HTTP client under every platform transport.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) { f.httpClient = c }
}

// WithRetryHook is called before every retry wait of every engine built.
func WithRetryHook(fn func(retry.Attempt)) Option {
	return func(f *Factory) { f.retryHook = fn }
}

// New returns a Factory over cfg.
func New(cfg *config.Config, opts ...Option) *Factory {
	f := &Factory{cfg: cfg}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New builds the Poster for p. The logger travels on ctx.
func (f *Factory) New(ctx context.Context, p publish.Platform) (publish.Poster, error) {
	log := logger.FromContext(ctx)
	tc := f.transport(log)

	switch p {
	case publish.Facebook:
		return facebook.New(f.cfg.Facebook, tc,
			facebook.WithRetry(f.engine(retry.Counted, log)),
			facebook.WithLogger(log))
	case publish.Twitter:
		return twitter.New(f.cfg.Twitter, tc,
			twitter.WithRetry(f.engine(retry.UntilReset, log)),
			twitter.WithLogger(log))
	case publish.Instagram:
		opts := []instagram.Option{
			instagram.WithRetry(f.engine(retry.Counted, log)),
			instagram.WithLogger(log),
			instagram.WithPolling(f.poll(), nil),
		}
		if host := f.mediaHost(tc, log); host != nil {
			opts = append(opts, instagram.WithHost(host))
		}
		if f.cfg.Instagram.ResolveLinkPreviews {
			r, err := linkpreview.New(tc)
			if err != nil {
				return nil, err
			}
			opts = append(opts, instagram.WithLinkPreview(r))
		}
		return instagram.New(f.cfg.Instagram, tc, opts...)
	case publish.LinkedIn:
		return linkedin.New(f.cfg.LinkedIn, tc,
			linkedin.WithRetry(f.engine(retry.Counted, log)),
			linkedin.WithLogger(log))
	default:
		return nil, publish.Validationf("unsupported platform %q", p)
	}
}

func (f *Factory) transport(log logger.Logger) transport.Config {
	h := f.cfg.HTTP
	return transport.Config{
		HTTPClient:   f.httpClient,
		Timeout:      config.Seconds(h.TimeoutSeconds),
		RetryCount:   h.RetryCount,
		RetryWait:    time.Duration(h.RetryWaitMillis) * time.Millisecond,
		RetryMaxWait: config.Seconds(h.RetryMaxWaitSeconds),
		Logger:       log,
	}
}

// engine builds a retry engine. Twitter waits out rate limits without
// spending attempts; the Graph and LinkedIn APIs count them.
func (f *Factory) engine(mode retry.RateLimitMode, log logger.Logger) *retry.Engine {
	r := f.cfg.Retry
	opts := []retry.Option{retry.WithLogger(log)}
	if f.retryHook != nil {
		opts = append(opts, retry.WithRetryHook(f.retryHook))
	}
	return retry.New(retry.Policy{
		MaxAttempts:       r.MaxAttempts,
		BackoffUnit:       config.Seconds(r.BackoffUnitSeconds),
		RateLimit:         mode,
		RateLimitFallback: config.Seconds(r.RateLimitFallbackSeconds),
		MaxRateLimitWaits: r.MaxRateLimitWaits,
	}, opts...)
}

func (f *Factory) poll() instagram.PollConfig {
	p := f.cfg.Poll
	return instagram.PollConfig{
		Initial: config.Seconds(p.InitialIntervalSeconds),
		Step:    config.Seconds(p.StepSeconds),
		Max:     config.Seconds(p.MaxIntervalSeconds),
		Timeout: config.Seconds(p.TimeoutSeconds),
	}
}

// mediaHost chains Cloudinary then Imgur, skipping unconfigured hosts. It
// returns nil when neither is usable.
func (f *Factory) mediaHost(tc transport.Config, log logger.Logger) mediahost.Host {
	var hosts []mediahost.Host
	if c, err := mediahost.NewCloudinary(f.cfg.Cloudinary, tc, log); err == nil {
		hosts = append(hosts, c)
	} else {
		logSkipped(log, "cloudinary", err)
	}
	if i, err := mediahost.NewImgur(f.cfg.Imgur, tc); err == nil {
		hosts = append(hosts, i)
	} else {
		logSkipped(log, "imgur", err)
	}
	chain := mediahost.NewChain(log, hosts...)
	if chain.Len() == 0 {
		return nil
	}
	return chain
}

func logSkipped(log logger.Logger, host string, err error) {
	if errors.Is(err, mediahost.ErrNotConfigured) {
		log.Debug("media host not configured", "host", host)
		return
	}
	log.Warn("media host unavailable", "host", host, "error", fmt.Sprint(err))
}
