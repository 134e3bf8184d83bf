// Package instagram publishes to an Instagram Business account through the
// Graph API container flow: create container, wait, publish.
package instagram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/imagefit"
	"github.com/mikequentel/socpost/internal/linkpreview"
	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/mediahost"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/retry"
	"github.com/mikequentel/socpost/internal/transport"
)

// Poster publishes single images, carousels, REELS and URL-sourced media.
type Poster struct {
	cfg     config.Instagram
	api     *transport.Client
	retry   *retry.Engine
	host    mediahost.Host
	preview *linkpreview.Resolver
	poller  *Poller
	log     logger.Logger

	pollCfg PollConfig
	sleep   Sleeper
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

// WithHost sets where local files are uploaded to obtain public URLs.
func WithHost(h mediahost.Host) Option {
	return func(p *Poster) { p.host = h }
}

// WithLinkPreview resolves page links to their preview image.
func WithLinkPreview(r *linkpreview.Resolver) Option {
	return func(p *Poster) { p.preview = r }
}

// WithPolling overrides the readiness poll schedule and sleeper.
func WithPolling(cfg PollConfig, sleep Sleeper) Option {
	return func(p *Poster) {
		p.pollCfg = cfg
		p.sleep = sleep
	}
}

// New validates credentials and builds a Poster.
func New(cfg config.Instagram, tc transport.Config, opts ...Option) (*Poster, error) {
	if err := config.Require("instagram",
		config.Field{Name: "INSTAGRAM_USER_ID", Value: cfg.UserID},
		config.Field{Name: "INSTAGRAM_ACCESS_TOKEN", Value: cfg.AccessToken},
	); err != nil {
		return nil, err
	}
	tc.Platform = string(publish.Instagram)
	tc.BaseURL = cfg.BaseURL
	tc.Auth = transport.AuthQuery
	tc.Token = cfg.AccessToken
	tc.RateLimitCodes = transport.GraphRateLimitCodes
	api, err := transport.New(tc)
	if err != nil {
		return nil, err
	}
	p := &Poster{
		cfg:     cfg,
		api:     api,
		retry:   retry.New(retry.Policy{RateLimit: retry.Counted}),
		log:     logger.Nop(),
		pollCfg: DefaultPollConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.poller = NewPoller(api, p.pollCfg, p.sleep, p.log)
	return p, nil
}

func (p *Poster) Platform() publish.Platform { return publish.Instagram }

// Publish creates the plan's container(s) and publishes exactly once.
func (p *Poster) Publish(ctx context.Context, plan publish.Plan) (string, error) {
	var (
		container string
		err       error
	)
	switch plan.Strategy {
	case publish.StrategyPhoto:
		container, err = p.imageContainer(ctx, plan.Media[0], plan.Text)
	case publish.StrategyImageURL:
		container, err = p.imageFromLink(ctx, plan)
	case publish.StrategyCarousel:
		container, err = p.carouselContainer(ctx, plan)
	case publish.StrategyVideo, publish.StrategyVideoURL:
		container, err = p.reelContainer(ctx, plan.Media[0], plan.Text)
	default:
		return "", publish.Validationf("instagram: unsupported strategy %q", plan.Strategy)
	}
	if err != nil {
		return "", err
	}
	return p.publishContainer(ctx, container)
}

func (p *Poster) imageContainer(ctx context.Context, item publish.MediaItem, caption string) (string, error) {
	url, err := p.mediaURL(ctx, item)
	if err != nil {
		return "", err
	}
	return p.createContainer(ctx, map[string]string{"image_url": url, "caption": caption})
}

// imageFromLink uses the link as the image. Page links without an image
// extension are swapped for the page's preview image when enabled.
func (p *Poster) imageFromLink(ctx context.Context, plan publish.Plan) (string, error) {
	item := plan.Media[0]
	if p.preview != nil && !hasImageExt(item.Location) {
		img, err := p.preview.ImageURL(ctx, item.Location)
		switch {
		case err == nil:
			p.log.Info("using link preview image", "page", item.Location, "image", img)
			item.Location = img
		case errors.Is(err, linkpreview.ErrNoImage):
			return "", publish.Validationf("the link has no preview image Instagram can use")
		default:
			p.log.Warn("link preview failed; using link directly", "error", err)
		}
	}
	return p.createContainer(ctx, map[string]string{"image_url": item.Location, "caption": plan.Text})
}

// carouselContainer creates one child per image in input order, then the
// parent container.
func (p *Poster) carouselContainer(ctx context.Context, plan publish.Plan) (string, error) {
	children := make([]string, 0, len(plan.Media))
	for i, item := range plan.Media {
		url, err := p.mediaURL(ctx, item)
		if err != nil {
			return "", fmt.Errorf("instagram: carousel item %d/%d: %w", i+1, len(plan.Media), err)
		}
		id, err := p.createContainer(ctx, map[string]string{"image_url": url, "is_carousel_item": "true"})
		if err != nil {
			return "", fmt.Errorf("instagram: carousel item %d/%d: %w", i+1, len(plan.Media), err)
		}
		children = append(children, id)
	}
	return p.createContainer(ctx, map[string]string{
		"media_type": "CAROUSEL",
		"children":   strings.Join(children, ","),
		"caption":    plan.Text,
	})
}

func (p *Poster) reelContainer(ctx context.Context, item publish.MediaItem, caption string) (string, error) {
	url, err := p.mediaURL(ctx, item)
	if err != nil {
		return "", err
	}
	id, err := p.createContainer(ctx, map[string]string{
		"media_type":    "REELS",
		"video_url":     url,
		"caption":       caption,
		"share_to_feed": "true",
	})
	if err != nil {
		return "", err
	}
	if err := p.poller.Wait(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// mediaURL returns a public URL for item, normalizing and hosting local
// files. Normalized copies are removed once hosted.
func (p *Poster) mediaURL(ctx context.Context, item publish.MediaItem) (string, error) {
	if item.Remote {
		return item.Location, nil
	}
	if p.host == nil {
		return "", &config.MissingError{
			Platform: "instagram",
			Keys:     []string{"CLOUDINARY_CLOUD_NAME", "CLOUDINARY_UPLOAD_PRESET or CLOUDINARY_API_KEY/CLOUDINARY_API_SECRET", "IMGUR_CLIENT_ID"},
		}
	}
	local := item.Location
	if item.Kind == publish.Image {
		out, changed, err := imagefit.Normalize(local)
		if err != nil {
			return "", publish.Validationf("instagram: %v", err)
		}
		if changed {
			p.log.Info("image letterboxed for instagram", "source", filepath.Base(local), "output", filepath.Base(out))
			defer os.Remove(out)
			local = out
		}
	}
	url, err := p.host.Upload(ctx, local, item.Kind)
	if err != nil {
		return "", fmt.Errorf("instagram: host %s: %w", filepath.Base(local), err)
	}
	return url, nil
}

func (p *Poster) createContainer(ctx context.Context, form map[string]string) (string, error) {
	var resp *transport.Response
	err := p.retry.Do(ctx, "media", func(ctx context.Context) error {
		var err error
		resp, err = p.api.Do(ctx, transport.Request{
			Method: http.MethodPost,
			Path:   "/" + p.cfg.UserID + "/media",
			Form:   form,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("instagram: create container: %w", err)
	}
	id := resp.ID()
	if id == "" {
		return "", fmt.Errorf("instagram: container response missing id: %s", string(resp.Body))
	}
	p.log.Debug("container created", "container", id)
	return id, nil
}

// publishContainer is issued once, without retries: a container can be
// published at most one time.
func (p *Poster) publishContainer(ctx context.Context, container string) (string, error) {
	resp, err := p.api.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/" + p.cfg.UserID + "/media_publish",
		Form:   map[string]string{"creation_id": container},
		Once:   true,
	})
	if err != nil {
		return "", fmt.Errorf("instagram: publish container %s: %w", container, err)
	}
	id := resp.ID()
	if id == "" {
		return "", fmt.Errorf("instagram: publish response missing id: %s", string(resp.Body))
	}
	return id, nil
}

// Verify reads the account's username.
func (p *Poster) Verify(ctx context.Context) (publish.Identity, error) {
	var resp *transport.Response
	err := p.retry.Do(ctx, "account", func(ctx context.Context) error {
		var err error
		resp, err = p.api.Do(ctx, transport.Request{
			Path:  "/" + p.cfg.UserID,
			Query: map[string]string{"fields": "id,username,name"},
		})
		return err
	})
	if err != nil {
		return publish.Identity{}, fmt.Errorf("instagram: verify account: %w", err)
	}
	name := resp.Get("username").String()
	if name != "" {
		name = "@" + name
	} else {
		name = resp.Get("name").String()
	}
	return publish.Identity{ID: resp.ID(), Name: name}, nil
}

func hasImageExt(raw string) bool {
	i := strings.IndexAny(raw, "?#")
	if i >= 0 {
		raw = raw[:i]
	}
	switch strings.ToLower(path.Ext(raw)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return true
	}
	return false
}
