// Package mediahost turns local media files into public HTTPS URLs for
// platforms that only ingest media by URL.
package mediahost

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/publish"
)

// ErrNotConfigured is returned by hosts missing credentials.
var ErrNotConfigured = errors.New("mediahost: not configured")

// Host uploads a local file and returns its public URL.
type Host interface {
	Name() string
	Upload(ctx context.Context, path string, kind publish.MediaKind) (string, error)
}

// Chain tries each host in order and returns the first URL obtained.
type Chain struct {
	hosts []Host
	log   logger.Logger
}

// NewChain builds a Chain. Nil hosts are skipped.
func NewChain(log logger.Logger, hosts ...Host) *Chain {
	if log == nil {
		log = logger.Nop()
	}
	c := &Chain{log: log}
	for _, h := range hosts {
		if h != nil {
			c.hosts = append(c.hosts, h)
		}
	}
	return c
}

func (c *Chain) Name() string { return "chain" }

// Len returns the number of hosts in the chain.
func (c *Chain) Len() int { return len(c.hosts) }

// Upload returns the first successful host's URL, or every host's error
// joined together.
func (c *Chain) Upload(ctx context.Context, path string, kind publish.MediaKind) (string, error) {
	if len(c.hosts) == 0 {
		return "", fmt.Errorf("%w: no media host available for %s", ErrNotConfigured, kind)
	}
	var errs []error
	for _, h := range c.hosts {
		url, err := h.Upload(ctx, path, kind)
		if err == nil {
			c.log.Info("media hosted", "host", h.Name(), "kind", string(kind), "url", url)
			return url, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.log.Warn("media host failed", "host", h.Name(), "kind", string(kind), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))
	}
	return "", errors.Join(errs...)
}
