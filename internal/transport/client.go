package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/mikequentel/socpost/internal/logger"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRetryCount   = 2
	defaultRetryWait    = time.Second
	defaultRetryMaxWait = 10 * time.Second
	defaultTokenParam   = "access_token"
	userAgent           = "socpost/1.0"
)

// Platform error codes that signal throttling.
var (
	GraphRateLimitCodes   = []int{4, 17, 32, 613}
	TwitterRateLimitCodes = []int{88}
)

// AuthStyle selects how the credential is attached to each request.
type AuthStyle int

const (
	// AuthNone leaves authentication to the supplied HTTP client
	// (OAuth 1.0a signing, oauth2 token sources).
	AuthNone AuthStyle = iota
	// AuthQuery sends the token as a query parameter (Graph API).
	AuthQuery
	// AuthBearer sends the token as an Authorization bearer header.
	AuthBearer
)

// Config describes one platform transport.
type Config struct {
	Platform       string
	BaseURL        string
	Auth           AuthStyle
	Token          string
	TokenParam     string
	HTTPClient     *http.Client
	Timeout        time.Duration
	RetryCount     int
	RetryWait      time.Duration
	RetryMaxWait   time.Duration
	RateLimitCodes []int
	Logger         logger.Logger
	Now            func() time.Time
}

// Client performs authenticated requests against one platform API with
// connection-level retries for network errors, 429 and 5xx responses.
type Client struct {
	cfg      Config
	retrying *resty.Client
	single   *resty.Client
	log      logger.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	cfg.Platform = strings.TrimSpace(cfg.Platform)
	if cfg.Platform == "" {
		return nil, errors.New("transport: platform name is required")
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Auth != AuthNone && cfg.Token == "" {
		return nil, fmt.Errorf("transport: %s: access token is required", cfg.Platform)
	}
	if cfg.TokenParam == "" {
		cfg.TokenParam = defaultTokenParam
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = defaultRetryCount
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}
	if cfg.RetryMaxWait <= 0 {
		cfg.RetryMaxWait = defaultRetryMaxWait
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Client{cfg: cfg, log: cfg.Logger.With("platform", cfg.Platform)}
	c.retrying = c.build(cfg.RetryCount)
	c.single = c.build(0)
	return c, nil
}

func (c *Client) build(retries int) *resty.Client {
	var rc *resty.Client
	if c.cfg.HTTPClient != nil {
		rc = resty.NewWithClient(c.cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(c.cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetRetryCount(retries).
		SetRetryWaitTime(c.cfg.RetryWait).
		SetRetryMaxWaitTime(c.cfg.RetryMaxWait).
		SetLogger(restyLogger{log: c.log, redact: c.redact})
	rc.AddRetryCondition(shouldRetry)
	if c.cfg.Auth == AuthBearer {
		rc.SetAuthToken(c.cfg.Token)
	}
	return rc
}

// Platform returns the platform this client talks to.
func (c *Client) Platform() string { return c.cfg.Platform }

// Token returns the credential attached to requests.
func (c *Client) Token() string { return c.cfg.Token }

// WithToken returns a copy of the client that attaches token instead.
func (c *Client) WithToken(token string) (*Client, error) {
	cfg := c.cfg
	cfg.Token = token
	return New(cfg)
}

// File is a multipart file part read from disk on every attempt.
type File struct {
	Field string
	Path  string
}

// Request describes one API call. Path may be relative to the base URL or
// absolute.
type Request struct {
	Method  string
	Path    string
	Query   map[string]string
	Form    map[string]string
	JSON    any
	Files   []File
	Headers map[string]string
	Timeout time.Duration
	// Once disables connection-level retries for calls that must not be
	// repeated, such as publishing a single-use container.
	Once bool
}

// Response is a successful API response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Get extracts a value from the JSON body using a gjson path.
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// ID returns the top-level "id" field as a string.
func (r *Response) ID() string {
	return r.Get("id").String()
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Do executes req. Any failure is returned as *Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rc := c.retrying
	if req.Once {
		rc = c.single
	}
	r := rc.R().SetContext(ctx)
	if c.cfg.Auth == AuthQuery {
		r.SetQueryParam(c.cfg.TokenParam, c.cfg.Token)
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	if req.JSON != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.JSON)
	}
	if len(req.Form) > 0 {
		r.SetFormData(req.Form)
	}
	for _, f := range req.Files {
		r.SetFile(f.Field, f.Path)
	}

	c.log.Debug("api request", "method", req.Method, "path", req.Path)
	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = c.redactURL(uerr.URL)
		}
		return nil, &Error{
			Platform: c.cfg.Platform,
			Method:   req.Method,
			Path:     req.Path,
			Err:      err,
		}
	}
	out := &Response{Status: resp.StatusCode(), Header: resp.Header(), Body: resp.Body()}
	if resp.IsError() || gjson.GetBytes(out.Body, "error").IsObject() {
		return nil, c.statusError(req, out)
	}
	return out, nil
}

func (c *Client) statusError(req Request, resp *Response) *Error {
	e := &Error{
		Platform: c.cfg.Platform,
		Method:   req.Method,
		Path:     req.Path,
		Status:   resp.Status,
		Body:     truncate(string(resp.Body), 1024),
	}
	parseErrorBody(e, resp.Body)
	for _, code := range c.cfg.RateLimitCodes {
		if e.Code == code {
			e.rateLimited = true
		}
	}
	e.ResetAt = resetTime(resp.Header, c.cfg.Now())
	return e
}

// redact masks the credential wherever it appears in s. Network errors
// quote the request URL, which carries the token for AuthQuery clients.
func (c *Client) redact(s string) string {
	if c.cfg.Token == "" {
		return s
	}
	s = strings.ReplaceAll(s, c.cfg.Token, logger.Mask(c.cfg.Token))
	if escaped := url.QueryEscape(c.cfg.Token); escaped != c.cfg.Token {
		s = strings.ReplaceAll(s, escaped, logger.Mask(c.cfg.Token))
	}
	return s
}

func (c *Client) redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return c.redact(raw)
	}
	q := u.Query()
	if q.Has(c.cfg.TokenParam) {
		q.Set(c.cfg.TokenParam, logger.Mask(q.Get(c.cfg.TokenParam)))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func shouldRetry(r *resty.Response, err error) bool {
	if err != nil {
		return IsConnectionError(err)
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= 500
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

type restyLogger struct {
	log    logger.Logger
	redact func(string) string
}

func (l restyLogger) line(format string, v ...any) string {
	return l.redact(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Errorf(format string, v ...any) { l.log.Error(l.line(format, v...)) }
func (l restyLogger) Warnf(format string, v ...any)  { l.log.Warn(l.line(format, v...)) }
func (l restyLogger) Debugf(format string, v ...any) { l.log.Debug(l.line(format, v...)) }
