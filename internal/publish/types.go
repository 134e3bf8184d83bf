package publish

import (
	"context"
	"fmt"
	"strings"
)

// Platform identifies a supported social network.
type Platform string

const (
	Facebook  Platform = "facebook"
	Twitter   Platform = "twitter"
	Instagram Platform = "instagram"
	LinkedIn  Platform = "linkedin"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{Facebook, Twitter, Instagram, LinkedIn}

// ParsePlatform maps user input onto a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case Facebook, Twitter, Instagram, LinkedIn:
		return p, nil
	case "x":
		return Twitter, nil
	}
	return "", Validationf("unknown platform %q", s)
}

// Title returns the display name of the platform.
func (p Platform) Title() string {
	switch p {
	case Facebook:
		return "Facebook"
	case Twitter:
		return "Twitter"
	case Instagram:
		return "Instagram"
	case LinkedIn:
		return "LinkedIn"
	}
	return string(p)
}

// MediaKind is the classified type of a media item.
type MediaKind string

const (
	Image MediaKind = "image"
	Video MediaKind = "video"
)

// MediaItem is one classified piece of media: a local path or a remote URL.
type MediaItem struct {
	Location string
	Kind     MediaKind
	Remote   bool
}

// PublishRequest is one publish attempt.
type PublishRequest struct {
	Text  string
	Link  string
	Media []MediaItem
}

// PublishResult is the single verdict returned to callers.
type PublishResult struct {
	Success  bool
	PostID   string
	Strategy Strategy
	Error    *Error
}

// Identity describes the account behind a set of credentials.
type Identity struct {
	ID   string
	Name string
}

func (i Identity) String() string {
	switch {
	case i.Name != "" && i.ID != "":
		return fmt.Sprintf("%s (%s)", i.Name, i.ID)
	case i.Name != "":
		return i.Name
	}
	return i.ID
}

// Status is the read-only credential check result.
type Status struct {
	Platform         Platform
	CredentialsValid bool
	AccountIdentity  string
	Error            string
}

// Poster is implemented once per platform. Publish receives a plan that
// has already passed validation.
type Poster interface {
	Platform() Platform
	Publish(ctx context.Context, plan Plan) (string, error)
	Verify(ctx context.Context) (Identity, error)
}

// Factory constructs a fresh Poster per call. Missing credentials are
// reported as *config.MissingError.
type Factory interface {
	New(ctx context.Context, p Platform) (Poster, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, p Platform) (Poster, error)

func (f FactoryFunc) New(ctx context.Context, p Platform) (Poster, error) { return f(ctx, p) }
