// Package staging stores uploaded media on local disk for the duration of
// one publish request.
package staging

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/publish"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Dir is a staging directory.
type Dir struct {
	root string
	log  logger.Logger
}

// New creates root when needed.
func New(root string, log logger.Logger) (*Dir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("staging: directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("staging: create %s: %w", root, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dir{root: root, log: log}, nil
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

// Batch is the set of files staged for one request.
type Batch struct {
	dir   *Dir
	paths []string
}

// NewBatch starts an empty batch. Callers must defer Cleanup.
func (d *Dir) NewBatch() *Batch {
	return &Batch{dir: d}
}

// Save copies an uploaded part to a uniquely named file that keeps the
// sanitized original name, so extension checks still apply.
func (b *Batch) Save(fh *multipart.FileHeader) (publish.Attachment, error) {
	name := SafeName(fh.Filename)
	dst := filepath.Join(b.dir.root, uuid.NewString()+"_"+name)

	src, err := fh.Open()
	if err != nil {
		return publish.Attachment{}, fmt.Errorf("staging: open upload %s: %w", name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return publish.Attachment{}, fmt.Errorf("staging: create %s: %w", name, err)
	}
	b.paths = append(b.paths, dst)
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return publish.Attachment{}, fmt.Errorf("staging: write %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return publish.Attachment{}, fmt.Errorf("staging: write %s: %w", name, err)
	}
	return publish.Attachment{Path: dst, Filename: name, ContentType: fh.Header.Get("Content-Type")}, nil
}

// Paths returns the staged files in save order.
func (b *Batch) Paths() []string { return append([]string(nil), b.paths...) }

// Cleanup removes every staged file. Failures are logged.
func (b *Batch) Cleanup() {
	for _, p := range b.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.dir.log.Warn("failed to remove staged upload", "path", p, "error", err)
		}
	}
	b.paths = nil
}

// CleanStale removes files older than maxAge left behind by a crash.
func (d *Dir) CleanStale(maxAge time.Duration) (removed int) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		d.log.Warn("failed to scan staging directory", "path", d.root, "error", err)
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(d.root, entry.Name())
		if err := os.Remove(path); err != nil {
			d.log.Warn("failed to remove stale upload", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		d.log.Info("removed stale uploads", "count", removed, "path", d.root)
	}
	return removed
}

// SafeName strips directories and anything outside [A-Za-z0-9._-].
func SafeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}
