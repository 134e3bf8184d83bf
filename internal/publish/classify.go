package publish

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	imageExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".avi": true, ".mov": true, ".wmv": true, ".flv": true, ".webm": true, ".3gp": true, ".mkv": true,
	}
)

// Attachment is a staged upload awaiting classification.
type Attachment struct {
	// Path is the local file holding the bytes.
	Path string
	// Filename is the name the client supplied; Path is used when empty.
	Filename string
	// ContentType is the declared type; sniffed from the file when empty.
	ContentType string
}

// Classify turns staged attachments into media items, preserving order.
// An attachment must carry an image/ or video/ content type AND an
// extension from the matching allow-list.
func Classify(atts []Attachment) ([]MediaItem, error) {
	items := make([]MediaItem, 0, len(atts))
	for _, a := range atts {
		item, err := classifyOne(a)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func classifyOne(a Attachment) (MediaItem, error) {
	name := a.Filename
	if name == "" {
		name = filepath.Base(a.Path)
	}
	ct := strings.ToLower(strings.TrimSpace(a.ContentType))
	if ct == "" {
		m, err := mimetype.DetectFile(a.Path)
		if err != nil {
			return MediaItem{}, Validationf("cannot read %s: %v", name, err)
		}
		ct = m.String()
	}
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case strings.HasPrefix(ct, "image/"):
		if !imageExtensions[ext] {
			return MediaItem{}, Validationf("%s: extension %q is not an allowed image type", name, ext)
		}
		return MediaItem{Location: a.Path, Kind: Image}, nil
	case strings.HasPrefix(ct, "video/"):
		if !videoExtensions[ext] {
			return MediaItem{}, Validationf("%s: extension %q is not an allowed video type", name, ext)
		}
		return MediaItem{Location: a.Path, Kind: Video}, nil
	}
	return MediaItem{}, Validationf("%s: unsupported content type %q", name, ct)
}

// ClassifyURL classifies a remote media URL by the extension of its path.
// Anything without a video extension is treated as an image.
func ClassifyURL(raw string) (MediaItem, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return MediaItem{}, Validationf("invalid media URL %q", raw)
	}
	kind := Image
	if videoExtensions[strings.ToLower(path.Ext(u.Path))] {
		kind = Video
	}
	return MediaItem{Location: u.String(), Kind: kind, Remote: true}, nil
}

// IsVideoURL reports whether the URL path ends in a video extension
// Instagram accepts for REELS.
func IsVideoURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".mp4", ".mov", ".webm":
		return true
	}
	return false
}

// Split partitions items by kind without reordering.
func Split(items []MediaItem) (images, videos []MediaItem) {
	for _, it := range items {
		if it.Kind == Video {
			videos = append(videos, it)
		} else {
			images = append(images, it)
		}
	}
	return images, videos
}
