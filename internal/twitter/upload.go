package twitter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mikequentel/socpost/internal/model"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/transport"
)

const (
	defaultChunkSize     = 1 << 20
	defaultStatusTimeout = 5 * time.Minute
	uploadTimeout        = 2 * time.Minute
)

// Upload turns a local file into a media id. Video items use the chunked
// INIT/APPEND/FINALIZE flow; everything else a single multipart upload.
func (p *Poster) Upload(ctx context.Context, item publish.MediaItem) (string, error) {
	if item.Remote {
		return "", publish.Validationf("twitter: remote media %q must be downloaded before upload", item.Location)
	}
	if item.Kind == publish.Video {
		return p.uploadChunked(ctx, item.Location)
	}
	return p.uploadSimple(ctx, item.Location)
}

func (p *Poster) uploadSimple(ctx context.Context, path string) (string, error) {
	var out model.MediaUploadResp
	err := p.retry.Do(ctx, "media upload", func(ctx context.Context) error {
		resp, err := p.api.Do(ctx, transport.Request{
			Method:  http.MethodPost,
			Path:    p.cfg.UploadURL,
			Files:   []transport.File{{Field: "media", Path: path}},
			Timeout: uploadTimeout,
		})
		if err != nil {
			return err
		}
		return resp.Decode(&out)
	})
	if err != nil {
		return "", err
	}
	return mediaID(out)
}

func (p *Poster) uploadChunked(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	mediaType := "video/mp4"
	if m, err := mimetype.DetectFile(path); err == nil && strings.HasPrefix(m.String(), "video/") {
		mediaType = m.String()
	}

	init, err := p.command(ctx, "INIT", map[string]string{
		"command":        "INIT",
		"total_bytes":    strconv.FormatInt(info.Size(), 10),
		"media_type":     mediaType,
		"media_category": "tweet_video",
	})
	if err != nil {
		return "", err
	}
	id, err := mediaID(init)
	if err != nil {
		return "", err
	}
	p.log.Debug("chunked upload started", "media_id", id, "bytes", info.Size(), "type", mediaType)

	buf := make([]byte, p.chunkSize)
	for segment := 0; ; segment++ {
		n, rerr := io.ReadFull(f, buf)
		if n > 0 {
			_, err := p.command(ctx, "APPEND", map[string]string{
				"command":       "APPEND",
				"media_id":      id,
				"segment_index": strconv.Itoa(segment),
				"media_data":    base64.StdEncoding.EncodeToString(buf[:n]),
			})
			if err != nil {
				return "", fmt.Errorf("append segment %d: %w", segment, err)
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("read %s: %w", filepath.Base(path), rerr)
		}
	}

	fin, err := p.command(ctx, "FINALIZE", map[string]string{"command": "FINALIZE", "media_id": id})
	if err != nil {
		return "", err
	}
	if err := p.awaitProcessing(ctx, id, fin.ProcessingInfo); err != nil {
		return "", err
	}
	return id, nil
}

// awaitProcessing polls STATUS until async video processing ends.
func (p *Poster) awaitProcessing(ctx context.Context, id string, info *model.ProcessingInfo) error {
	var waited time.Duration
	for info != nil {
		switch info.State {
		case "succeeded":
			return nil
		case "failed":
			msg := "processing failed"
			if info.Error != nil && info.Error.Message != "" {
				msg = info.Error.Message
			}
			return publish.ProcessingError(publish.Twitter, msg, nil)
		}
		if waited >= p.statusTimeout {
			return publish.ProcessingError(publish.Twitter, fmt.Sprintf("media %s still %s after %s", id, info.State, p.statusTimeout), nil)
		}
		wait := time.Duration(max(info.CheckAfterSecs, 1)) * time.Second
		p.log.Debug("media processing", "media_id", id, "state", info.State, "progress", info.ProgressPct, "wait", wait.String())
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait

		var out model.MediaUploadResp
		err := p.retry.Do(ctx, "media STATUS", func(ctx context.Context) error {
			resp, err := p.api.Do(ctx, transport.Request{
				Path:  p.cfg.UploadURL,
				Query: map[string]string{"command": "STATUS", "media_id": id},
			})
			if err != nil {
				return err
			}
			return resp.Decode(&out)
		})
		if err != nil {
			return fmt.Errorf("media status: %w", err)
		}
		info = out.ProcessingInfo
	}
	return nil
}

func (p *Poster) command(ctx context.Context, name string, form map[string]string) (model.MediaUploadResp, error) {
	var out model.MediaUploadResp
	err := p.retry.Do(ctx, "media "+name, func(ctx context.Context) error {
		resp, err := p.api.Do(ctx, transport.Request{
			Method:  http.MethodPost,
			Path:    p.cfg.UploadURL,
			Form:    form,
			Timeout: uploadTimeout,
		})
		if err != nil {
			return err
		}
		if len(resp.Body) == 0 {
			return nil // APPEND answers 204 No Content
		}
		return resp.Decode(&out)
	})
	if err != nil {
		return out, fmt.Errorf("media %s: %w", name, err)
	}
	return out, nil
}

func mediaID(r model.MediaUploadResp) (string, error) {
	if r.MediaIDString != "" {
		return r.MediaIDString, nil
	}
	if r.MediaID != 0 {
		return strconv.FormatInt(r.MediaID, 10), nil
	}
	return "", errors.New("upload response missing media_id")
}
