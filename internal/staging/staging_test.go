package staging

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileHeaders builds parsed multipart headers the way a server sees them.
func fileHeaders(t *testing.T, files map[string]string) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	names := []string{}
	for name := range files {
		names = append(names, name)
	}
	for _, name := range names {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="media_file"; filename="`+name+`"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		part.Write([]byte(files[name]))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["media_file"]
}

func TestSaveAndCleanup(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "uploads"), nil)
	require.NoError(t, err)

	batch := d.NewBatch()
	att, err := batch.Save(fileHeaders(t, map[string]string{"../../cat photo.png": "meow"})[0])
	require.NoError(t, err)

	assert.Equal(t, "cat_photo.png", att.Filename)
	assert.Equal(t, "image/png", att.ContentType)
	assert.Equal(t, d.Root(), filepath.Dir(att.Path))
	assert.True(t, strings.HasSuffix(att.Path, "_cat_photo.png"))
	data, err := os.ReadFile(att.Path)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(data))

	batch.Cleanup()
	assert.NoFileExists(t, att.Path)
	assert.Empty(t, batch.Paths())
}

func TestSameNameDoesNotCollide(t *testing.T) {
	d, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	batch := d.NewBatch()
	defer batch.Cleanup()

	fh := fileHeaders(t, map[string]string{"a.png": "x"})[0]
	first, err := batch.Save(fh)
	require.NoError(t, err)
	second, err := batch.Save(fh)
	require.NoError(t, err)
	assert.NotEqual(t, first.Path, second.Path)
	assert.Len(t, batch.Paths(), 2)
}

func TestCleanStale(t *testing.T) {
	root := t.TempDir()
	d, err := New(root, nil)
	require.NoError(t, err)

	old := filepath.Join(root, "old.png")
	fresh := filepath.Join(root, "fresh.png")
	require.NoError(t, os.WriteFile(old, []byte("o"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("f"), 0o600))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	assert.Equal(t, 1, d.CleanStale(time.Hour))
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"photo.jpg":         "photo.jpg",
		`C:\Users\me\a.png`: "a.png",
		"../../etc/passwd":  "passwd",
		"my photo (1).jpeg": "my_photo_1_.jpeg",
		"...":               "upload",
		".env":              "env",
		"vidéo.mp4":         "vid_o.mp4",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), in)
	}
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New("  ", nil)
	assert.Error(t, err)
}
