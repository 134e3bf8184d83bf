// Package linkpreview finds the preview image a web page advertises.
package linkpreview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mikequentel/socpost/internal/transport"
)

// ErrNoImage is returned when a page declares no preview image.
var ErrNoImage = errors.New("linkpreview: page has no preview image")

// Selectors checked in order of preference.
var imageSelectors = []struct {
	sel  string
	attr string
}{
	{`meta[property="og:image:secure_url"]`, "content"},
	{`meta[property="og:image"]`, "content"},
	{`meta[name="twitter:image"]`, "content"},
	{`meta[property="twitter:image"]`, "content"},
	{`link[rel="image_src"]`, "href"},
}

// Resolver fetches pages and extracts their preview image URL.
type Resolver struct {
	api *transport.Client
}

// New builds a Resolver over tc's HTTP settings.
func New(tc transport.Config) (*Resolver, error) {
	tc.Platform = "linkpreview"
	tc.Auth = transport.AuthNone
	api, err := transport.New(tc)
	if err != nil {
		return nil, err
	}
	return &Resolver{api: api}, nil
}

// ImageURL returns the absolute preview image URL declared by pageURL.
func (r *Resolver) ImageURL(ctx context.Context, pageURL string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("linkpreview: parse %q: %w", pageURL, err)
	}
	resp, err := r.api.Do(ctx, transport.Request{
		Path:    pageURL,
		Headers: map[string]string{"Accept": "text/html,application/xhtml+xml"},
	})
	if err != nil {
		return "", fmt.Errorf("linkpreview: fetch: %w", err)
	}
	return Extract(base, resp.Body)
}

// Extract parses an HTML document and resolves its preview image against
// base.
func Extract(base *url.URL, html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("linkpreview: parse html: %w", err)
	}
	for _, s := range imageSelectors {
		v, ok := doc.Find(s.sel).First().Attr(s.attr)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		ref, err := url.Parse(v)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme == "http" || abs.Scheme == "https" {
			return abs.String(), nil
		}
	}
	return "", ErrNoImage
}
