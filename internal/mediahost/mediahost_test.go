package mediahost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/transport"
)

func tempFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("payload"), 0o644))
	return p
}

// ===================== Sign =====================

func TestSign(t *testing.T) {
	// sha1("folder=socmed_poster&timestamp=1700000000" + "secret")
	got := Sign(map[string]string{"timestamp": "1700000000", "folder": "socmed_poster"}, "secret")
	assert.Len(t, got, 40)
	assert.Equal(t, got, Sign(map[string]string{"folder": "socmed_poster", "timestamp": "1700000000"}, "secret"))
	assert.NotEqual(t, got, Sign(map[string]string{"folder": "socmed_poster", "timestamp": "1700000001"}, "secret"))

	// sha1("a=1&b=2s")
	assert.Equal(t, "a68dc2f2281adc016679fcaae670e81774932884", Sign(map[string]string{"b": "2", "a": "1"}, "s"))
}

// ===================== Cloudinary =====================

func TestCloudinaryNotConfigured(t *testing.T) {
	_, err := NewCloudinary(config.Cloudinary{CloudName: "demo"}, transport.Config{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCloudinaryUnsignedUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/video/upload", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "preset1", r.FormValue("upload_preset"))
		assert.Empty(t, r.FormValue("signature"))
		_, _, err := r.FormFile("file")
		assert.NoError(t, err)
		w.Write([]byte(`{"secure_url":"https://res.cloudinary.com/demo/video/upload/v1/clip.mp4"}`))
	}))
	defer srv.Close()

	c, err := NewCloudinary(config.Cloudinary{CloudName: "demo", UploadPreset: "preset1", BaseURL: srv.URL}, transport.Config{}, nil)
	require.NoError(t, err)
	assert.False(t, c.Signed())
	url, err := c.Upload(context.Background(), tempFile(t, "clip.mp4"), publish.Video)
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/video/upload/v1/clip.mp4", url)
}

func TestCloudinarySignedUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/image/upload", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))
		assert.Equal(t, "socmed_poster", r.FormValue("folder"))
		assert.Empty(t, r.FormValue("video_codec"))
		want := Sign(map[string]string{"timestamp": "1700000000", "folder": "socmed_poster"}, "secret")
		assert.Equal(t, want, r.FormValue("signature"))
		w.Write([]byte(`{"secure_url":"https://res.cloudinary.com/demo/image/upload/v1/a.jpg"}`))
	}))
	defer srv.Close()

	c, err := NewCloudinary(config.Cloudinary{
		CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "socmed_poster", BaseURL: srv.URL,
	}, transport.Config{}, nil)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	assert.True(t, c.Signed())

	url, err := c.Upload(context.Background(), tempFile(t, "a.jpg"), publish.Image)
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/v1/a.jpg", url)
}

func TestCloudinarySignedVideoTranscodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/video/upload", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		signed := map[string]string{
			"timestamp":   "1700000000",
			"folder":      "socmed_poster",
			"video_codec": "h264",
			"audio_codec": "aac",
			"format":      "mp4",
			"fps":         "30",
			"bit_rate":    "1000k",
		}
		for k, v := range signed {
			assert.Equal(t, v, r.FormValue(k), k)
		}
		assert.Equal(t, Sign(signed, "secret"), r.FormValue("signature"))
		w.Write([]byte(`{"secure_url":"https://res.cloudinary.com/demo/video/upload/v1/clip.mp4"}`))
	}))
	defer srv.Close()

	c, err := NewCloudinary(config.Cloudinary{
		CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "socmed_poster", BaseURL: srv.URL,
	}, transport.Config{}, nil)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	url, err := c.Upload(context.Background(), tempFile(t, "clip.mp4"), publish.Video)
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/video/upload/v1/clip.mp4", url)
}

func TestCloudinaryErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Upload preset not found"}}`))
	}))
	defer srv.Close()

	c, err := NewCloudinary(config.Cloudinary{CloudName: "demo", UploadPreset: "nope", BaseURL: srv.URL}, transport.Config{}, nil)
	require.NoError(t, err)
	_, err = c.Upload(context.Background(), tempFile(t, "a.jpg"), publish.Image)
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "Upload preset not found", terr.Message)
}

// ===================== Imgur =====================

func TestImgurUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "Client-ID cid", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("video")
		assert.NoError(t, err)
		w.Write([]byte(`{"data":{"link":"https://i.imgur.com/abc.mp4"},"success":true,"status":200}`))
	}))
	defer srv.Close()

	i, err := NewImgur(config.Imgur{ClientID: "cid", BaseURL: srv.URL}, transport.Config{})
	require.NoError(t, err)
	url, err := i.Upload(context.Background(), tempFile(t, "abc.mp4"), publish.Video)
	require.NoError(t, err)
	assert.Equal(t, "https://i.imgur.com/abc.mp4", url)
}

func TestImgurNotConfigured(t *testing.T) {
	_, err := NewImgur(config.Imgur{}, transport.Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

// ===================== Chain =====================

type stubHost struct {
	name  string
	url   string
	err   error
	calls int
}

func (s *stubHost) Name() string { return s.name }

func (s *stubHost) Upload(context.Context, string, publish.MediaKind) (string, error) {
	s.calls++
	return s.url, s.err
}

func TestChainFallsBack(t *testing.T) {
	first := &stubHost{name: "cloudinary", err: errors.New("quota exceeded")}
	second := &stubHost{name: "imgur", url: "https://i.imgur.com/x.jpg"}
	third := &stubHost{name: "unused"}

	url, err := NewChain(logger.Nop(), first, nil, second, third).Upload(context.Background(), "x.jpg", publish.Image)
	require.NoError(t, err)
	assert.Equal(t, "https://i.imgur.com/x.jpg", url)
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, third.calls)
}

func TestChainJoinsErrors(t *testing.T) {
	a := &stubHost{name: "a", err: errors.New("boom a")}
	b := &stubHost{name: "b", err: errors.New("boom b")}
	_, err := NewChain(nil, a, b).Upload(context.Background(), "x.jpg", publish.Image)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: boom a")
	assert.Contains(t, err.Error(), "b: boom b")
}

func TestEmptyChain(t *testing.T) {
	c := NewChain(nil)
	assert.Zero(t, c.Len())
	_, err := c.Upload(context.Background(), "x.jpg", publish.Image)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
