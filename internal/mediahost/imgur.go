package mediahost

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/transport"
)

// Imgur uploads anonymously with an application client id.
type Imgur struct {
	clientID string
	api      *transport.Client
}

// NewImgur returns ErrNotConfigured without a client id.
func NewImgur(cfg config.Imgur, tc transport.Config) (*Imgur, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: imgur needs IMGUR_CLIENT_ID", ErrNotConfigured)
	}
	tc.Platform = "imgur"
	tc.BaseURL = cfg.BaseURL
	tc.Auth = transport.AuthNone
	api, err := transport.New(tc)
	if err != nil {
		return nil, err
	}
	return &Imgur{clientID: cfg.ClientID, api: api}, nil
}

func (i *Imgur) Name() string { return "imgur" }

func (i *Imgur) Upload(ctx context.Context, path string, kind publish.MediaKind) (string, error) {
	field := "image"
	if kind == publish.Video {
		field = "video"
	}
	resp, err := i.api.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		Path:    "/upload",
		Files:   []transport.File{{Field: field, Path: path}},
		Headers: map[string]string{"Authorization": "Client-ID " + i.clientID},
		Timeout: uploadTimeout,
	})
	if err != nil {
		return "", err
	}
	if !resp.Get("success").Bool() {
		return "", fmt.Errorf("imgur: upload unsuccessful: %s", resp.Get("data.error").String())
	}
	link := resp.Get("data.link").String()
	if link == "" {
		return "", fmt.Errorf("imgur: response missing data.link")
	}
	return link, nil
}
