package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/transport"
)

// ErrorKind is the failure category surfaced to callers.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindValidation    ErrorKind = "validation"
	KindTransient     ErrorKind = "transient"
	KindPlatform      ErrorKind = "platform"
	KindProcessing    ErrorKind = "processing"
)

// Error is the structured failure carried by PublishResult.
type Error struct {
	Kind     ErrorKind
	Platform Platform
	Message  string
	Status   int
	Code     int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a validation error with a user-facing message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ProcessingError reports media the platform failed to process.
func ProcessingError(platform Platform, detail string, err error) *Error {
	return &Error{
		Kind:     KindProcessing,
		Platform: platform,
		Message:  detail,
		Err:      err,
	}
}

// UserMessage returns the one human-readable line shown for this failure.
func (e *Error) UserMessage() string {
	name := e.Platform.Title()
	switch e.Kind {
	case KindValidation:
		return e.Message
	case KindConfiguration:
		return fmt.Sprintf("Configuration error: %s", e.Message)
	case KindTransient:
		return fmt.Sprintf("Could not reach %s; try again later.", name)
	case KindPlatform:
		if e.Code != 0 {
			return fmt.Sprintf("%s rejected the post (code %d): %s", name, e.Code, e.Message)
		}
		return fmt.Sprintf("%s rejected the post: %s", name, e.Message)
	case KindProcessing:
		return fmt.Sprintf("%s could not process the media (%s). Use an MP4 with H.264 video and AAC audio, 30fps max, under 100MB.", name, e.Message)
	}
	return e.Message
}

// asError converts any failure into a *Error for platform p.
func asError(p Platform, err error) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		if perr.Platform == "" {
			perr.Platform = p
		}
		return perr
	}
	var missing *config.MissingError
	if errors.As(err, &missing) {
		return &Error{Kind: KindConfiguration, Platform: p, Message: missing.Error(), Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Platform: p, Message: err.Error(), Err: err}
	}
	// A local file that vanished or cannot be read fails before any request
	// leaves, even when the transport reports it.
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return &Error{Kind: KindValidation, Platform: p, Message: fmt.Sprintf("media missing or unreadable: %s", pathErr.Path), Err: err}
	}
	var terr *transport.Error
	if errors.As(err, &terr) {
		if terr.Retryable() {
			return &Error{Kind: KindTransient, Platform: p, Message: terr.Error(), Status: terr.Status, Code: terr.Code, Err: err}
		}
		msg := terr.Message
		if msg == "" {
			msg = fmt.Sprintf("http %d", terr.Status)
		}
		return &Error{Kind: KindPlatform, Platform: p, Message: msg, Status: terr.Status, Code: terr.Code, Err: err}
	}
	// Anything else came back from the platform in a shape we did not expect.
	return &Error{Kind: KindPlatform, Platform: p, Message: err.Error(), Err: err}
}
