// Package linkedin shares text posts, optionally with an article link, to
// a member's feed through the v2 ugcPosts API.
package linkedin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/model"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/retry"
	"github.com/mikequentel/socpost/internal/transport"
)

const restliVersion = "2.0.0"

// Poster publishes member shares.
type Poster struct {
	cfg      config.LinkedIn
	api      *transport.Client
	retry    *retry.Engine
	log      logger.Logger
	personID string
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

// New validates the access token and builds a Poster whose requests carry
// it through an oauth2 static token source. The person id is looked up on
// first use when not configured.
func New(cfg config.LinkedIn, tc transport.Config, opts ...Option) (*Poster, error) {
	if err := config.Require("linkedin",
		config.Field{Name: "LINKEDIN_ACCESS_TOKEN", Value: cfg.AccessToken},
	); err != nil {
		return nil, err
	}
	ctx := context.Background()
	if tc.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, tc.HTTPClient)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(cfg.AccessToken), TokenType: "Bearer"})

	tc.Platform = string(publish.LinkedIn)
	tc.BaseURL = cfg.BaseURL
	tc.Auth = transport.AuthNone
	tc.HTTPClient = oauth2.NewClient(ctx, src)
	api, err := transport.New(tc)
	if err != nil {
		return nil, err
	}
	p := &Poster{
		cfg:      cfg,
		api:      api,
		retry:    retry.New(retry.Policy{RateLimit: retry.Counted}),
		log:      logger.Nop(),
		personID: strings.TrimSpace(cfg.PersonID),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Poster) Platform() publish.Platform { return publish.LinkedIn }

// Publish creates a PUBLIC ugcPost. A link turns the share into an ARTICLE.
func (p *Poster) Publish(ctx context.Context, plan publish.Plan) (string, error) {
	if plan.Strategy != publish.StrategyText {
		return "", publish.Validationf("linkedin: unsupported strategy %q", plan.Strategy)
	}
	author, err := p.author(ctx)
	if err != nil {
		return "", err
	}
	body := model.UGCPost{
		Author:         author,
		LifecycleState: "PUBLISHED",
		SpecificContent: model.UGCSpecific{ShareContent: model.UGCShareContent{
			ShareCommentary:    model.UGCText{Text: plan.Text},
			ShareMediaCategory: "NONE",
		}},
		Visibility: map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}
	if plan.Link != "" {
		share := &body.SpecificContent.ShareContent
		share.ShareMediaCategory = "ARTICLE"
		share.Media = []model.UGCMedia{{Status: "READY", OriginalURL: plan.Link}}
	}

	// A share is not idempotent; the engine only repeats it on 429/5xx.
	var resp *transport.Response
	err = p.retry.Do(ctx, "ugcPosts", func(ctx context.Context) error {
		var err error
		resp, err = p.api.Do(ctx, transport.Request{
			Method:  http.MethodPost,
			Path:    "/ugcPosts",
			JSON:    body,
			Headers: map[string]string{"X-Restli-Protocol-Version": restliVersion},
			Once:    true,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("linkedin: create share: %w", err)
	}
	if id := resp.Header.Get("X-RestLi-Id"); id != "" {
		return id, nil
	}
	if id := resp.ID(); id != "" {
		return id, nil
	}
	return "", errors.New("linkedin: create share: response carries no post id")
}

func (p *Poster) author(ctx context.Context) (string, error) {
	if p.personID == "" {
		me, err := p.me(ctx)
		if err != nil {
			return "", fmt.Errorf("linkedin: resolve person id: %w", err)
		}
		if me.ID == "" {
			return "", &config.MissingError{Platform: "linkedin", Keys: []string{"LINKEDIN_PERSON_ID"}}
		}
		p.log.Info("resolved linkedin person id", "person", me.ID)
		p.personID = me.ID
	}
	return "urn:li:person:" + p.personID, nil
}

func (p *Poster) me(ctx context.Context) (publish.Identity, error) {
	var resp *transport.Response
	err := p.retry.Do(ctx, "me", func(ctx context.Context) error {
		var err error
		resp, err = p.api.Do(ctx, transport.Request{Path: "/me"})
		return err
	})
	if err != nil {
		return publish.Identity{}, err
	}
	name := strings.TrimSpace(resp.Get("localizedFirstName").String() + " " + resp.Get("localizedLastName").String())
	return publish.Identity{ID: resp.ID(), Name: name}, nil
}

// Verify reads the member profile behind the token.
func (p *Poster) Verify(ctx context.Context) (publish.Identity, error) {
	id, err := p.me(ctx)
	if err != nil {
		return publish.Identity{}, fmt.Errorf("linkedin: verify token: %w", err)
	}
	if p.personID == "" {
		p.personID = id.ID
	}
	return id, nil
}
