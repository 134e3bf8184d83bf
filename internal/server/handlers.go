package server

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikequentel/socpost/internal/history"
	"github.com/mikequentel/socpost/internal/publish"
)

type errorBody struct {
	Kind    publish.ErrorKind `json:"kind"`
	Message string            `json:"message"`
}

type postResponse struct {
	Success  bool             `json:"success"`
	Platform publish.Platform `json:"platform"`
	Strategy publish.Strategy `json:"strategy,omitempty"`
	PostID   string           `json:"post_id,omitempty"`
	Error    *errorBody       `json:"error,omitempty"`
}

type statusResponse struct {
	CredentialsValid bool   `json:"credentials_valid"`
	Account          string `json:"account,omitempty"`
	Error            string `json:"error,omitempty"`
}

type historyResponse struct {
	ID         string    `json:"id"`
	Platform   string    `json:"platform"`
	Strategy   string    `json:"strategy,omitempty"`
	Message    string    `json:"message"`
	Link       string    `json:"link,omitempty"`
	MediaCount int       `json:"media_count"`
	Success    bool      `json:"success"`
	PostID     string    `json:"post_id,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	PostedAt   time.Time `json:"posted_at"`
	DurationMS int64     `json:"duration_ms"`
}

// handlePost accepts multipart fields message, platform, link and any
// number of media_file parts. Staged files are removed before returning.
func (s *Server) handlePost(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	form, formErr := c.MultipartForm()
	if formErr != nil && !errors.Is(formErr, http.ErrNotMultipart) {
		s.reject(c, "", tooLargeOr(formErr))
		return
	}

	platform, err := publish.ParsePlatform(c.DefaultPostForm("platform", string(publish.Facebook)))
	if err != nil {
		s.reject(c, "", err)
		return
	}
	req := publish.PublishRequest{
		Text: c.PostForm("message"),
		Link: c.PostForm("link"),
	}

	batch := s.uploads.NewBatch()
	defer batch.Cleanup()

	if form != nil {
		var files []*multipart.FileHeader
		files = append(files, form.File["media_file"]...)
		files = append(files, form.File["media_file[]"]...)
		atts := make([]publish.Attachment, 0, len(files))
		for _, fh := range files {
			if fh.Filename == "" {
				continue
			}
			att, err := batch.Save(fh)
			if err != nil {
				s.log.Error("failed to stage upload", "file", fh.Filename, "error", err)
				c.JSON(http.StatusInternalServerError, postResponse{Platform: platform, Error: &errorBody{Message: "could not store the uploaded file"}})
				return
			}
			atts = append(atts, att)
		}
		if req.Media, err = publish.Classify(atts); err != nil {
			s.reject(c, platform, err)
			return
		}
	}

	res := s.pub.Publish(c.Request.Context(), platform, req)
	out := postResponse{Success: res.Success, Platform: platform, Strategy: res.Strategy, PostID: res.PostID}
	if res.Error != nil {
		out.Error = &errorBody{Kind: res.Error.Kind, Message: res.Error.UserMessage()}
	}
	c.JSON(statusFor(res.Error), out)
}

func (s *Server) reject(c *gin.Context, p publish.Platform, err error) {
	var perr *publish.Error
	if !errors.As(err, &perr) {
		perr = &publish.Error{Kind: publish.KindValidation, Message: err.Error()}
	}
	perr.Platform = p
	c.JSON(statusFor(perr), postResponse{Platform: p, Error: &errorBody{Kind: perr.Kind, Message: perr.Message}})
}

func tooLargeOr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return publish.Validationf("upload exceeds %d MB", mbe.Limit>>20)
	}
	return err
}

// statusFor maps error kinds onto HTTP status codes.
func statusFor(e *publish.Error) int {
	if e == nil {
		return http.StatusOK
	}
	switch e.Kind {
	case publish.KindValidation:
		return http.StatusBadRequest
	case publish.KindConfiguration:
		return http.StatusServiceUnavailable
	case publish.KindProcessing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// handleStatus checks one platform (?platform=) or all of them.
func (s *Server) handleStatus(c *gin.Context) {
	var statuses []publish.Status
	if name := strings.TrimSpace(c.Query("platform")); name != "" {
		p, err := publish.ParsePlatform(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		statuses = []publish.Status{s.pub.CheckStatus(c.Request.Context(), p)}
	} else {
		statuses = s.pub.CheckAll(c.Request.Context())
	}
	out := make(map[publish.Platform]statusResponse, len(statuses))
	for _, st := range statuses {
		out[st.Platform] = statusResponse{CredentialsValid: st.CredentialsValid, Account: st.AccountIdentity, Error: st.Error}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
}

// handleHistory lists recent attempts (?platform=&limit=).
func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	q := history.Query{}
	if name := strings.TrimSpace(c.Query("platform")); name != "" {
		p, err := publish.ParsePlatform(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		q.Platform = p
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		q.Limit = n
	}
	entries, err := s.history.Recent(c.Request.Context(), q)
	if err != nil {
		s.log.Error("history query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResponse{
			ID:         e.ID,
			Platform:   string(e.Platform),
			Strategy:   string(e.Strategy),
			Message:    e.Message,
			Link:       e.Link,
			MediaCount: e.MediaCount,
			Success:    e.Success,
			PostID:     e.PostID,
			ErrorKind:  string(e.ErrorKind),
			Error:      e.ErrorMessage,
			PostedAt:   e.PostedAt,
			DurationMS: e.Duration.Milliseconds(),
		})
	}
	c.JSON(http.StatusOK, out)
}
