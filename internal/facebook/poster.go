// Package facebook publishes to a Facebook Page through the Graph API.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/model"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/retry"
	"github.com/mikequentel/socpost/internal/transport"
)

const videoTimeout = 5 * time.Minute

// Poster publishes Page posts: text, single photo, multi-photo album and
// single video.
type Poster struct {
	cfg   config.Facebook
	api   *transport.Client
	retry *retry.Engine
	log   logger.Logger
}

var _ publish.Poster = (*Poster)(nil)

// Option configures a Poster.
type Option func(*Poster)

// WithRetry sets the engine wrapping every Graph call.
func WithRetry(e *retry.Engine) Option {
	return func(p *Poster) {
		if e != nil {
			p.retry = e
		}
	}
}

// WithLogger sets the poster logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Poster) {
		if l != nil {
			p.log = l
		}
	}
}

// New validates credentials and builds a Poster. tc carries the shared
// transport settings; platform, base URL and auth are filled in here.
func New(cfg config.Facebook, tc transport.Config, opts ...Option) (*Poster, error) {
	if err := config.Require("facebook",
		config.Field{Name: "FACEBOOK_PAGE_ID", Value: cfg.PageID},
		config.Field{Name: "FACEBOOK_ACCESS_TOKEN", Value: cfg.AccessToken},
	); err != nil {
		return nil, err
	}
	tc.Platform = string(publish.Facebook)
	tc.BaseURL = cfg.BaseURL
	tc.Auth = transport.AuthQuery
	tc.Token = cfg.AccessToken
	tc.RateLimitCodes = transport.GraphRateLimitCodes
	api, err := transport.New(tc)
	if err != nil {
		return nil, err
	}
	p := &Poster{
		cfg:   cfg,
		api:   api,
		retry: retry.New(retry.Policy{RateLimit: retry.Counted}),
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Poster) Platform() publish.Platform { return publish.Facebook }

// Publish runs the plan's strategy against the Page.
func (p *Poster) Publish(ctx context.Context, plan publish.Plan) (string, error) {
	api, err := p.pageClient(ctx)
	if err != nil {
		return "", err
	}
	switch plan.Strategy {
	case publish.StrategyText:
		return p.postText(ctx, api, plan)
	case publish.StrategyPhoto:
		return p.postPhoto(ctx, api, plan)
	case publish.StrategyAlbum:
		return p.postAlbum(ctx, api, plan)
	case publish.StrategyVideo:
		return p.postVideo(ctx, api, plan)
	}
	return "", publish.Validationf("facebook: unsupported strategy %q", plan.Strategy)
}

// pageClient swaps the configured user token for the Page token when
// enabled. A token that already belongs to the Page is kept, and any lookup
// failure falls back to the configured token.
func (p *Poster) pageClient(ctx context.Context) (*transport.Client, error) {
	if !p.cfg.ResolvePageToken {
		return p.api, nil
	}
	me, err := p.call(ctx, p.api, "me", transport.Request{Path: "/me", Query: map[string]string{"fields": "id"}})
	if err == nil && me.ID() == p.cfg.PageID {
		p.log.Debug("configured token is already a page token", "page", p.cfg.PageID)
		return p.api, nil
	}

	accounts, err := p.call(ctx, p.api, "me/accounts", transport.Request{
		Path:  "/me/accounts",
		Query: map[string]string{"fields": "id,name,access_token", "limit": "100"},
	})
	if err != nil {
		p.log.Warn("could not list page accounts; using configured token", "page", p.cfg.PageID, "error", err)
		return p.api, nil
	}
	for _, acct := range accounts.Get("data").Array() {
		if acct.Get("id").String() != p.cfg.PageID {
			continue
		}
		tok := acct.Get("access_token").String()
		if tok == "" {
			break
		}
		p.log.Debug("using page access token", "page", p.cfg.PageID, "token", logger.Mask(tok))
		return p.api.WithToken(tok)
	}
	p.log.Warn("page not found in /me/accounts; using configured token", "page", p.cfg.PageID)
	return p.api, nil
}

func (p *Poster) call(ctx context.Context, api *transport.Client, op string, req transport.Request) (*transport.Response, error) {
	var resp *transport.Response
	err := p.retry.Do(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = api.Do(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Poster) postText(ctx context.Context, api *transport.Client, plan publish.Plan) (string, error) {
	form := map[string]string{"message": plan.Text}
	if plan.Link != "" {
		form["link"] = plan.Link
	}
	resp, err := p.call(ctx, api, "feed", transport.Request{
		Method: http.MethodPost,
		Path:   "/" + p.cfg.PageID + "/feed",
		Form:   form,
	})
	if err != nil {
		return "", fmt.Errorf("facebook: create feed post: %w", err)
	}
	return requireID(resp, "id")
}

func (p *Poster) postPhoto(ctx context.Context, api *transport.Client, plan publish.Plan) (string, error) {
	req := photoRequest(p.cfg.PageID, plan.Media[0])
	req.Form["caption"] = caption(plan)
	resp, err := p.call(ctx, api, "photos", req)
	if err != nil {
		return "", fmt.Errorf("facebook: upload photo: %w", err)
	}
	return requireID(resp, "post_id", "id")
}

func (p *Poster) postVideo(ctx context.Context, api *transport.Client, plan publish.Plan) (string, error) {
	item := plan.Media[0]
	req := transport.Request{
		Method:  http.MethodPost,
		Path:    "/" + p.cfg.PageID + "/videos",
		Form:    map[string]string{"description": caption(plan)},
		Timeout: videoTimeout,
	}
	if item.Remote {
		req.Form["file_url"] = item.Location
	} else {
		req.Files = []transport.File{{Field: "source", Path: item.Location}}
	}
	resp, err := p.call(ctx, api, "videos", req)
	if err != nil {
		return "", fmt.Errorf("facebook: upload video: %w", err)
	}
	return requireID(resp, "id")
}

// postAlbum stages every photo unpublished, then links them into one feed
// post. Staged photos are deleted if any step fails.
func (p *Poster) postAlbum(ctx context.Context, api *transport.Client, plan publish.Plan) (id string, err error) {
	staged := make([]string, 0, len(plan.Media))
	defer func() {
		if err != nil && len(staged) > 0 {
			p.discardStaged(ctx, api, staged)
		}
	}()

	for i, item := range plan.Media {
		req := photoRequest(p.cfg.PageID, item)
		req.Form["published"] = "false"
		resp, err := p.call(ctx, api, "photos", req)
		if err != nil {
			return "", fmt.Errorf("facebook: stage photo %d/%d: %w", i+1, len(plan.Media), err)
		}
		photoID, err := requireID(resp, "id")
		if err != nil {
			return "", err
		}
		staged = append(staged, photoID)
		p.log.Debug("staged photo", "index", i+1, "photo_id", photoID)
	}

	attached := make([]model.AttachedMedia, len(staged))
	for i, s := range staged {
		attached[i] = model.AttachedMedia{MediaFBID: s}
	}
	raw, err := json.Marshal(attached)
	if err != nil {
		return "", fmt.Errorf("facebook: encode attached_media: %w", err)
	}
	resp, err := p.call(ctx, api, "feed", transport.Request{
		Method: http.MethodPost,
		Path:   "/" + p.cfg.PageID + "/feed",
		Form:   map[string]string{"message": caption(plan), "attached_media": string(raw)},
	})
	if err != nil {
		return "", fmt.Errorf("facebook: create album post: %w", err)
	}
	return requireID(resp, "id")
}

// discardStaged deletes staged photos once each. Failures are logged and
// dropped: the post has already failed and the caller gets that error.
func (p *Poster) discardStaged(ctx context.Context, api *transport.Client, ids []string) {
	ctx = context.WithoutCancel(ctx)
	failed := 0
	for _, id := range ids {
		_, err := api.Do(ctx, transport.Request{Method: http.MethodDelete, Path: "/" + id, Once: true})
		if err != nil {
			failed++
			p.log.Warn("could not delete staged photo", "photo_id", id, "error", err)
		}
	}
	p.log.Info("cleaned up staged photos", "deleted", len(ids)-failed, "failed", failed)
}

// Verify checks the token with /me and that the Page is readable.
func (p *Poster) Verify(ctx context.Context) (publish.Identity, error) {
	me, err := p.call(ctx, p.api, "me", transport.Request{Path: "/me", Query: map[string]string{"fields": "id,name"}})
	if err != nil {
		return publish.Identity{}, fmt.Errorf("facebook: verify token: %w", err)
	}
	p.log.Debug("token belongs to", "id", me.ID(), "name", me.Get("name").String())

	page, err := p.call(ctx, p.api, "page", transport.Request{
		Path:  "/" + p.cfg.PageID,
		Query: map[string]string{"fields": "id,name"},
	})
	if err != nil {
		return publish.Identity{}, fmt.Errorf("facebook: verify page: %w", err)
	}
	return publish.Identity{ID: page.ID(), Name: page.Get("name").String()}, nil
}

func photoRequest(pageID string, item publish.MediaItem) transport.Request {
	req := transport.Request{
		Method: http.MethodPost,
		Path:   "/" + pageID + "/photos",
		Form:   map[string]string{},
	}
	if item.Remote {
		req.Form["url"] = item.Location
	} else {
		req.Files = []transport.File{{Field: "source", Path: item.Location}}
	}
	return req
}

func caption(plan publish.Plan) string {
	switch {
	case plan.Link == "":
		return plan.Text
	case plan.Text == "":
		return plan.Link
	}
	return plan.Text + "\n\n" + plan.Link
}

func requireID(resp *transport.Response, fields ...string) (string, error) {
	for _, f := range fields {
		if id := resp.Get(f).String(); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("facebook: response missing %s: %s", fields[0], string(resp.Body))
}
