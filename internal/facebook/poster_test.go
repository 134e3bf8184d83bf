package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/model"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/retry"
	"github.com/mikequentel/socpost/internal/transport"
)

// graphFake records every call made against a fake Graph API.
type graphFake struct {
	mu      sync.Mutex
	calls   []string
	deletes []string
	forms   []map[string]string
	failOn  string
	nextID  int
}

func (g *graphFake) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		assert.Equal(t, "page-token", r.URL.Query().Get("access_token"))
		key := r.Method + " " + r.URL.Path
		g.calls = append(g.calls, key)

		if r.Method == http.MethodDelete {
			g.deletes = append(g.deletes, strings.TrimPrefix(r.URL.Path, "/"))
			w.Write([]byte(`{"success":true}`))
			return
		}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			assert.NoError(t, r.ParseMultipartForm(1<<20))
		} else {
			assert.NoError(t, r.ParseForm())
		}
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		g.forms = append(g.forms, form)

		if g.failOn == key {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"(#100) Invalid parameter","type":"OAuthException","code":100}}`))
			return
		}
		g.nextID++
		switch {
		case strings.HasSuffix(r.URL.Path, "/photos"):
			fmt.Fprintf(w, `{"id":"photo%d","post_id":"page_%d"}`, g.nextID, g.nextID)
		default:
			fmt.Fprintf(w, `{"id":"page_post%d"}`, g.nextID)
		}
	})
}

func testRetry() *retry.Engine {
	return retry.New(retry.Policy{MaxAttempts: 3, BackoffUnit: time.Millisecond, RateLimit: retry.Counted, RateLimitFallback: time.Millisecond})
}

func newTestPoster(t *testing.T, srv *httptest.Server, cfgMut func(*config.Facebook)) *Poster {
	t.Helper()
	cfg := config.Facebook{PageID: "1001", AccessToken: "page-token", BaseURL: srv.URL}
	if cfgMut != nil {
		cfgMut(&cfg)
	}
	p, err := New(cfg, transport.Config{RetryCount: 0}, WithRetry(testRetry()))
	require.NoError(t, err)
	return p
}

func writeImages(t *testing.T, n int) []publish.MediaItem {
	t.Helper()
	dir := t.TempDir()
	items := make([]publish.MediaItem, n)
	for i := range items {
		p := filepath.Join(dir, fmt.Sprintf("img%02d.jpg", i))
		require.NoError(t, os.WriteFile(p, []byte("fake-jpeg"), 0o644))
		items[i] = publish.MediaItem{Location: p, Kind: publish.Image}
	}
	return items
}

// ===================== New =====================

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(config.Facebook{BaseURL: "http://x"}, transport.Config{})
	var missing *config.MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"FACEBOOK_PAGE_ID", "FACEBOOK_ACCESS_TOKEN"}, missing.Keys)
}

// ===================== text / photo / video =====================

func TestPostText(t *testing.T) {
	g := &graphFake{}
	srv := httptest.NewServer(g.handler(t))
	defer srv.Close()

	id, err := newTestPoster(t, srv, nil).Publish(context.Background(), publish.Plan{
		Strategy: publish.StrategyText, Text: "hello", Link: "https://example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "page_post1", id)
	assert.Equal(t, []string{"POST /1001/feed"}, g.calls)
	assert.Equal(t, "hello", g.forms[0]["message"])
	assert.Equal(t, "https://example.com", g.forms[0]["link"])
}

func TestPostSinglePhotoReturnsPostID(t *testing.T) {
	g := &graphFake{}
	srv := httptest.NewServer(g.handler(t))
	defer srv.Close()

	id, err := newTestPoster(t, srv, nil).Publish(context.Background(), publish.Plan{
		Strategy: publish.StrategyPhoto, Text: "look", Media: writeImages(t, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, "page_1", id)
	assert.Equal(t, "look", g.forms[0]["caption"])
	assert.Empty(t, g.forms[0]["published"])
}

func TestPostVideo(t *testing.T) {
	g := &graphFake{}
	srv := httptest.NewServer(g.handler(t))
	defer srv.Close()

	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(clip, []byte("fake-mp4"), 0o644))

	id, err := newTestPoster(t, srv, nil).Publish(context.Background(), publish.Plan{
		Strategy: publish.StrategyVideo, Text: "watch", Media: []publish.MediaItem{{Location: clip, Kind: publish.Video}},
	})
	require.NoError(t, err)
	assert.Equal(t, "page_post1", id)
	assert.Equal(t, []string{"POST /1001/videos"}, g.calls)
	assert.Equal(t, "watch", g.forms[0]["description"])
}

// ===================== album =====================

func TestAlbumStagesInOrderThenLinks(t *testing.T) {
	g := &graphFake{}
	srv := httptest.NewServer(g.handler(t))
	defer srv.Close()

	id, err := newTestPoster(t, srv, nil).Publish(context.Background(), publish.Plan{
		Strategy: publish.StrategyAlbum, Text: "album", Media: writeImages(t, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, "page_post4", id)
	assert.Equal(t, []string{"POST /1001/photos", "POST /1001/photos", "POST /1001/photos", "POST /1001/feed"}, g.calls)
	for i := 0; i < 3; i++ {
		assert.Equal(t, "false", g.forms[i]["published"])
	}

	var attached []model.AttachedMedia
	require.NoError(t, json.Unmarshal([]byte(g.forms[3]["attached_media"]), &attached))
	assert.Equal(t, []model.AttachedMedia{{MediaFBID: "photo1"}, {MediaFBID: "photo2"}, {MediaFBID: "photo3"}}, attached)
	assert.Empty(t, g.deletes)
}

func TestAlbumFeedFailureDeletesEveryStagedPhoto(t *testing.T) {
	g := &graphFake{failOn: "POST /1001/feed"}
	srv := httptest.NewServer(g.handler(t))
	defer srv.Close()

	const n = 4
	_, err := newTestPoster(t, srv, nil).Publish(context.Background(), publish.Plan{
		Strategy: publish.StrategyAlbum, Text: "album", Media: writeImages(t, n),
	})
	require.Error(t, err)
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 100, terr.Code)

	assert.Equal(t, []string{"photo1", "photo2", "photo3", "photo4"}, g.deletes)
}

func TestAlbumUploadFailureDeletesEarlierPhotos(t *testing.T) {
	g := &graphFake{}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			calls++
			if calls == 3 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":{"message":"Invalid image","code":324}}`))
				return
			}
		}
		g.handler(t).ServeHTTP(w, r)
	}))
	defer srv.Close()

	_, err := newTestPoster(t, srv, nil).Publish(context.Background(), publish.Plan{
		Strategy: publish.StrategyAlbum, Media: writeImages(t, 5),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage photo 3/5")
	assert.Equal(t, []string{"photo1", "photo2"}, g.deletes)
}

func TestCleanupFailureDoesNotMaskPublishError(t *testing.T) {
	var deletes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete:
			deletes++
			w.WriteHeader(http.StatusInternalServerError)
		case strings.HasSuffix(r.URL.Path, "/feed"):
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"message":"(#200) Permissions error","code":200}}`))
		default:
			w.Write([]byte(`{"id":"p"}`))
		}
	}))
	defer srv.Close()

	_, err := newTestPoster(t, srv, nil).Publish(context.Background(), publish.Plan{
		Strategy: publish.StrategyAlbum, Media: writeImages(t, 2),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Permissions error")
	assert.Equal(t, 2, deletes)
}

// ===================== page token / verify =====================

func TestResolvePageToken(t *testing.T) {
	var feedToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me":
			w.Write([]byte(`{"id":"7"}`))
		case "/me/accounts":
			assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))
			w.Write([]byte(`{"data":[{"id":"999","access_token":"other"},{"id":"1001","name":"Mine","access_token":"resolved"}]}`))
		case "/1001/feed":
			feedToken = r.URL.Query().Get("access_token")
			w.Write([]byte(`{"id":"1001_1"}`))
		}
	}))
	defer srv.Close()

	p := newTestPoster(t, srv, func(c *config.Facebook) {
		c.AccessToken = "user-token"
		c.ResolvePageToken = true
	})
	id, err := p.Publish(context.Background(), publish.Plan{Strategy: publish.StrategyText, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "1001_1", id)
	assert.Equal(t, "resolved", feedToken)
}

func TestPageTokenKeptWithDefaultConfig(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		assert.Equal(t, "page-token", r.URL.Query().Get("access_token"))
		switch r.URL.Path {
		case "/me":
			w.Write([]byte(`{"id":"1001","name":"My Page"}`))
		case "/1001/feed":
			w.Write([]byte(`{"id":"1001_9"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"(#100) Tried accessing nonexisting field (accounts) on node type (Page)","code":100}}`))
		}
	}))
	defer srv.Close()

	cfg := config.Default().Facebook
	require.True(t, cfg.ResolvePageToken)
	cfg.PageID, cfg.AccessToken, cfg.BaseURL = "1001", "page-token", srv.URL
	p, err := New(cfg, transport.Config{}, WithRetry(testRetry()))
	require.NoError(t, err)

	id, err := p.Publish(context.Background(), publish.Plan{Strategy: publish.StrategyText, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "1001_9", id)
	assert.Equal(t, []string{"/me", "/1001/feed"}, calls)
}

func TestAccountsLookupFailureFallsBack(t *testing.T) {
	var feedCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me":
			w.Write([]byte(`{"id":"7"}`))
		case "/1001/feed":
			feedCalls++
			assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))
			w.Write([]byte(`{"id":"1001_2"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"(#100) Tried accessing nonexisting field (accounts)","code":100}}`))
		}
	}))
	defer srv.Close()

	p := newTestPoster(t, srv, func(c *config.Facebook) {
		c.AccessToken = "user-token"
		c.ResolvePageToken = true
	})
	id, err := p.Publish(context.Background(), publish.Plan{Strategy: publish.StrategyText, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "1001_2", id)
	assert.Equal(t, 1, feedCalls)
}

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me":
			w.Write([]byte(`{"id":"7","name":"Operator"}`))
		case "/1001":
			w.Write([]byte(`{"id":"1001","name":"My Page"}`))
		}
	}))
	defer srv.Close()

	id, err := newTestPoster(t, srv, nil).Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, publish.Identity{ID: "1001", Name: "My Page"}, id)
}

func TestVerifyInvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","code":190}}`))
	}))
	defer srv.Close()

	_, err := newTestPoster(t, srv, nil).Verify(context.Background())
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 190, terr.Code)
}
