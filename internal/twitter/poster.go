// Package twitter posts tweets with optional media using OAuth 1.0a user
// context: v1.1 media upload and v2 tweet creation.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gotwitter "github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/model"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/retry"
	"github.com/mikequentel/socpost/internal/transport"
)

// Poster creates tweets. Every media item is uploaded before the tweet is
// attempted; a failed upload aborts the tweet.
type Poster struct {
	cfg   config.Twitter
	api   *transport.Client
	v1    *gotwitter.Client
	retry *retry.Engine
	log   logger.Logger
	sleep func(ctx context.Context, d time.Duration) error

	chunkSize     int
	statusTimeout time.Duration
}

var _ publish.Poster = (*Poster)(nil)

// Option configures a Poster.
type Option func(*Poster)

func WithRetry(e *retry.Engine) Option {
	return func(p *Poster) {
		if e != nil {
			p.retry = e
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(p *Poster) {
		if l != nil {
			p.log = l
		}
	}
}

// WithSleeper replaces the wait used between upload STATUS checks.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poster) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithChunkSize sets the APPEND segment size in bytes.
func WithChunkSize(n int) Option {
	return func(p *Poster) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// New validates credentials and builds an OAuth1-signed Poster. A base
// HTTP client in tc is used underneath the signer.
func New(cfg config.Twitter, tc transport.Config, opts ...Option) (*Poster, error) {
	if err := config.Require("twitter",
		config.Field{Name: "TWITTER_API_KEY", Value: cfg.APIKey},
		config.Field{Name: "TWITTER_API_SECRET_KEY", Value: cfg.APISecret},
		config.Field{Name: "TWITTER_ACCESS_TOKEN", Value: cfg.AccessToken},
		config.Field{Name: "TWITTER_ACCESS_SECRET_TOKEN", Value: cfg.AccessSecret},
	); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if tc.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, tc.HTTPClient)
	}
	signed := oauth1.NewConfig(cfg.APIKey, cfg.APISecret).Client(ctx, oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret))

	tc.Platform = string(publish.Twitter)
	tc.BaseURL = cfg.APIBaseURL
	tc.Auth = transport.AuthNone
	tc.HTTPClient = signed
	tc.RateLimitCodes = transport.TwitterRateLimitCodes
	api, err := transport.New(tc)
	if err != nil {
		return nil, err
	}
	p := &Poster{
		cfg:           cfg,
		api:           api,
		v1:            gotwitter.NewClient(signed),
		retry:         retry.New(retry.DefaultPolicy()),
		log:           logger.Nop(),
		sleep:         sleepContext,
		chunkSize:     defaultChunkSize,
		statusTimeout: defaultStatusTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Poster) Platform() publish.Platform { return publish.Twitter }

// Publish uploads media in order, then creates the tweet.
func (p *Poster) Publish(ctx context.Context, plan publish.Plan) (string, error) {
	ids := make([]string, 0, len(plan.Media))
	for i, item := range plan.Media {
		id, err := p.Upload(ctx, item)
		if err != nil {
			return "", fmt.Errorf("twitter: upload media %d/%d: %w", i+1, len(plan.Media), err)
		}
		ids = append(ids, id)
	}
	return p.CreateTweet(ctx, publish.TweetText(plan.Text, plan.Link), ids)
}

// CreateTweet posts text with already uploaded media ids.
func (p *Poster) CreateTweet(ctx context.Context, text string, mediaIDs []string) (string, error) {
	body := model.TweetReq{Text: text}
	if len(mediaIDs) > 0 {
		body.Media = &model.TweetMedia{MediaIDs: mediaIDs}
	}
	var out model.TweetResp
	err := p.retry.Do(ctx, "create tweet", func(ctx context.Context) error {
		resp, err := p.api.Do(ctx, transport.Request{Method: http.MethodPost, Path: "/2/tweets", JSON: body})
		if err != nil {
			return err
		}
		return resp.Decode(&out)
	})
	if err != nil {
		return "", fmt.Errorf("twitter: create tweet: %w", err)
	}
	if out.Data.ID == "" {
		return "", errors.New("twitter: create tweet: response missing data.id")
	}
	return out.Data.ID, nil
}

// Verify reads the authenticated user through v2, falling back to the
// v1.1 verify_credentials endpoint.
func (p *Poster) Verify(ctx context.Context) (publish.Identity, error) {
	var resp *transport.Response
	err := p.retry.Do(ctx, "users/me", func(ctx context.Context) error {
		var err error
		resp, err = p.api.Do(ctx, transport.Request{Path: "/2/users/me"})
		return err
	})
	if err == nil && resp.Get("data.username").String() != "" {
		return publish.Identity{ID: resp.Get("data.id").String(), Name: "@" + resp.Get("data.username").String()}, nil
	}
	if ctx.Err() != nil {
		return publish.Identity{}, ctx.Err()
	}
	p.log.Debug("v2 users/me unavailable; trying v1.1", "error", err)

	var user *gotwitter.User
	err = p.retry.Do(ctx, "verify_credentials", func(context.Context) error {
		u, httpResp, err := p.v1.Accounts.VerifyCredentials(&gotwitter.AccountVerifyParams{
			SkipStatus:   gotwitter.Bool(true),
			IncludeEmail: gotwitter.Bool(false),
		})
		if err != nil {
			return v1Error(httpResp, err)
		}
		user = u
		return nil
	})
	if err != nil {
		return publish.Identity{}, fmt.Errorf("twitter: verify credentials: %w", err)
	}
	return publish.Identity{ID: user.IDStr, Name: "@" + user.ScreenName}, nil
}

// v1Error maps go-twitter failures onto transport errors so retry and
// error classification treat both clients alike.
func v1Error(resp *http.Response, err error) error {
	terr := &transport.Error{
		Platform: string(publish.Twitter),
		Method:   http.MethodGet,
		Path:     "/1.1/account/verify_credentials.json",
	}
	if resp == nil {
		terr.Err = err
		return terr
	}
	terr.Status = resp.StatusCode
	var apiErr gotwitter.APIError
	if errors.As(err, &apiErr) && len(apiErr.Errors) > 0 {
		terr.Code = apiErr.Errors[0].Code
		terr.Message = apiErr.Errors[0].Message
	} else {
		terr.Message = err.Error()
	}
	return terr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
