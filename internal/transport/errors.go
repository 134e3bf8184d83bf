package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
)

// Error is a failed API call: either a network failure (Err set) or an
// HTTP/platform error response.
type Error struct {
	Platform string
	Method   string
	Path     string
	Status   int
	Code     int
	Subcode  int
	Message  string
	Body     string
	ResetAt  time.Time
	Err      error

	rateLimited bool
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("%s: %s %s", e.Platform, e.Method, e.Path)
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("%s: http %d: error %d: %s", prefix, e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: http %d: %s", prefix, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s: http %d: %s", prefix, e.Status, e.Body)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// RateLimited reports a 429 or a platform rate-limit error code.
func (e *Error) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests || e.rateLimited
}

// Temporary reports network failures and 5xx responses.
func (e *Error) Temporary() bool {
	if e.Err != nil {
		return IsConnectionError(e.Err)
	}
	return e.Status >= 500
}

// Retryable reports whether the failure may succeed when repeated.
func (e *Error) Retryable() bool {
	return e.RateLimited() || e.Temporary()
}

// IsConnectionError reports network-layer failures: resets, timeouts,
// refused connections and truncated responses.
func IsConnectionError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// parseErrorBody fills Code, Subcode and Message from the error shapes used
// by Graph, Twitter v1.1/v2, LinkedIn, Cloudinary and Imgur.
func parseErrorBody(e *Error, body []byte) {
	if !gjson.ValidBytes(body) {
		e.Message = truncate(string(body), 300)
		return
	}
	res := gjson.ParseBytes(body)

	// Graph API, Cloudinary
	if g := res.Get("error"); g.IsObject() {
		e.Code = int(g.Get("code").Int())
		e.Subcode = int(g.Get("error_subcode").Int())
		e.Message = firstString(g.Get("error_user_msg"), g.Get("message"))
		return
	}
	// Twitter v1.1
	if first := res.Get("errors.0"); first.Exists() && first.Get("code").Exists() {
		e.Code = int(first.Get("code").Int())
		e.Message = first.Get("message").String()
		return
	}
	// Twitter v2 problem document
	if title := res.Get("title"); title.Exists() {
		msg := title.String()
		if detail := res.Get("detail").String(); detail != "" {
			msg += ": " + detail
		}
		e.Message = msg
		return
	}
	// LinkedIn
	if res.Get("serviceErrorCode").Exists() {
		e.Code = int(res.Get("serviceErrorCode").Int())
		e.Message = res.Get("message").String()
		return
	}
	e.Message = firstString(res.Get("data.error.message"), res.Get("data.error"), res.Get("message"), res.Get("error"))
	if e.Message == "" {
		e.Message = truncate(string(body), 300)
	}
}

func firstString(results ...gjson.Result) string {
	for _, r := range results {
		if r.Type == gjson.String && strings.TrimSpace(r.String()) != "" {
			return strings.TrimSpace(r.String())
		}
	}
	return ""
}

// resetTime reads x-rate-limit-reset (unix seconds) or Retry-After (seconds).
func resetTime(h http.Header, now time.Time) time.Time {
	if v := strings.TrimSpace(h.Get("x-rate-limit-reset")); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
			return time.Unix(secs, 0)
		}
	}
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
		if t, err := http.ParseTime(v); err == nil {
			return t
		}
	}
	return time.Time{}
}
