package mediahost

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/transport"
)

const uploadTimeout = 5 * time.Minute

// instagramVideo transcodes signed video uploads into what Instagram REELS
// ingests. Unsigned uploads rely on the preset for this.
var instagramVideo = map[string]string{
	"video_codec": "h264",
	"audio_codec": "aac",
	"format":      "mp4",
	"fps":         "30",
	"bit_rate":    "1000k",
}

// Cloudinary uploads with an unsigned preset when one is configured,
// otherwise with a signed request.
type Cloudinary struct {
	cfg config.Cloudinary
	api *transport.Client
	now func() time.Time
	log logger.Logger
}

// NewCloudinary returns ErrNotConfigured unless a cloud name and either a
// preset or a key/secret pair are set.
func NewCloudinary(cfg config.Cloudinary, tc transport.Config, log logger.Logger) (*Cloudinary, error) {
	if cfg.CloudName == "" || (cfg.UploadPreset == "" && (cfg.APIKey == "" || cfg.APISecret == "")) {
		return nil, fmt.Errorf("%w: cloudinary needs CLOUDINARY_CLOUD_NAME and CLOUDINARY_UPLOAD_PRESET or CLOUDINARY_API_KEY/CLOUDINARY_API_SECRET", ErrNotConfigured)
	}
	if log == nil {
		log = logger.Nop()
	}
	tc.Platform = "cloudinary"
	tc.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.CloudName
	tc.Auth = transport.AuthNone
	api, err := transport.New(tc)
	if err != nil {
		return nil, err
	}
	return &Cloudinary{cfg: cfg, api: api, now: time.Now, log: log}, nil
}

func (c *Cloudinary) Name() string { return "cloudinary" }

// Signed reports whether uploads are signed with the API secret.
func (c *Cloudinary) Signed() bool { return c.cfg.UploadPreset == "" }

func (c *Cloudinary) Upload(ctx context.Context, path string, kind publish.MediaKind) (string, error) {
	resource := "image"
	if kind == publish.Video {
		resource = "video"
	}
	form := c.params(kind)
	resp, err := c.api.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		Path:    "/" + resource + "/upload",
		Form:    form,
		Files:   []transport.File{{Field: "file", Path: path}},
		Timeout: uploadTimeout,
	})
	if err != nil {
		return "", err
	}
	url := resp.Get("secure_url").String()
	if url == "" {
		return "", fmt.Errorf("cloudinary: response missing secure_url")
	}
	return url, nil
}

func (c *Cloudinary) params(kind publish.MediaKind) map[string]string {
	if !c.Signed() {
		c.log.Debug("cloudinary unsigned upload", "preset", logger.Mask(c.cfg.UploadPreset))
		form := map[string]string{"upload_preset": c.cfg.UploadPreset}
		if c.cfg.Folder != "" {
			form["folder"] = c.cfg.Folder
		}
		return form
	}
	signed := map[string]string{"timestamp": strconv.FormatInt(c.now().Unix(), 10)}
	if c.cfg.Folder != "" {
		signed["folder"] = c.cfg.Folder
	}
	if kind == publish.Video {
		for k, v := range instagramVideo {
			signed[k] = v
		}
	}
	form := map[string]string{
		"api_key":   c.cfg.APIKey,
		"signature": Sign(signed, c.cfg.APISecret),
	}
	for k, v := range signed {
		form[k] = v
	}
	c.log.Debug("cloudinary signed upload", "api_key", logger.Mask(c.cfg.APIKey), "kind", string(kind))
	return form
}

// Sign computes the Cloudinary request signature: SHA-1 over the params
// sorted by key as k=v pairs joined with '&', followed by the secret.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}
