package publish

import (
	"strings"
	"unicode/utf8"
)

// Platform limits.
const (
	MaxTweetLength    = 280
	TweetURLLength    = 23
	MaxTweetMedia     = 4
	MaxFacebookPhotos = 10
	MaxCarouselItems  = 10
	MinCarouselItems  = 2
	MaxLinkedInLength = 3000
)

// Strategy is the publish shape chosen for a request.
type Strategy string

const (
	StrategyText     Strategy = "text"
	StrategyPhoto    Strategy = "photo"
	StrategyAlbum    Strategy = "album"
	StrategyVideo    Strategy = "video"
	StrategyMedia    Strategy = "media"
	StrategyCarousel Strategy = "carousel"
	StrategyImageURL Strategy = "image_url"
	StrategyVideoURL Strategy = "video_url"
)

// Plan is a validated request bound to one strategy. Media is in input
// order and already trimmed to the platform's limit.
type Plan struct {
	Platform Platform
	Strategy Strategy
	Text     string
	Link     string
	Media    []MediaItem
	// Dropped counts media items discarded by truncation.
	Dropped int
}

// Select validates req for platform p and picks the publish strategy.
// It never touches the network.
func Select(p Platform, req PublishRequest) (Plan, error) {
	req.Text = strings.TrimSpace(req.Text)
	req.Link = strings.TrimSpace(req.Link)
	plan := Plan{Platform: p, Text: req.Text, Link: req.Link}

	images, videos := Split(req.Media)
	if req.Text == "" && len(req.Media) == 0 && !(p == Instagram && req.Link != "") {
		return plan, Validationf("a message or media is required")
	}

	switch p {
	case Facebook:
		return selectFacebook(plan, images, videos)
	case Twitter:
		return selectTwitter(plan, req.Media)
	case Instagram:
		return selectInstagram(plan, images, videos)
	case LinkedIn:
		return selectLinkedIn(plan, req.Media)
	}
	return plan, Validationf("unknown platform %q", p)
}

func selectFacebook(plan Plan, images, videos []MediaItem) (Plan, error) {
	switch {
	case len(images) > 0 && len(videos) > 0:
		return plan, Validationf("Facebook does not support mixing images and videos in one post")
	case len(videos) > 1:
		return plan, Validationf("Facebook supports one video per post")
	case len(videos) == 1:
		plan.Strategy, plan.Media = StrategyVideo, videos
	case len(images) > MaxFacebookPhotos:
		return plan, Validationf("Facebook albums allow a maximum %d photos, got %d", MaxFacebookPhotos, len(images))
	case len(images) > 1:
		plan.Strategy, plan.Media = StrategyAlbum, images
	case len(images) == 1:
		plan.Strategy, plan.Media = StrategyPhoto, images
	default:
		plan.Strategy = StrategyText
	}
	return plan, nil
}

func selectTwitter(plan Plan, media []MediaItem) (Plan, error) {
	if n := TweetLength(plan.Text, plan.Link); n > MaxTweetLength {
		return plan, Validationf("tweet is %d characters; the limit is %d", n, MaxTweetLength)
	}
	if len(media) == 0 {
		plan.Strategy = StrategyText
		return plan, nil
	}
	if len(media) > MaxTweetMedia {
		plan.Dropped = len(media) - MaxTweetMedia
		media = media[:MaxTweetMedia]
	}
	plan.Strategy, plan.Media = StrategyMedia, media
	return plan, nil
}

func selectInstagram(plan Plan, images, videos []MediaItem) (Plan, error) {
	switch {
	case len(images) > 0 && len(videos) > 0:
		return plan, Validationf("Instagram carousels cannot mix images and videos")
	case len(videos) > 1:
		return plan, Validationf("Instagram supports one video per post")
	case len(videos) == 1:
		plan.Strategy, plan.Media = StrategyVideo, videos
	case len(images) > MaxCarouselItems:
		return plan, Validationf("Instagram carousels allow a maximum %d images, got %d", MaxCarouselItems, len(images))
	case len(images) >= MinCarouselItems:
		plan.Strategy, plan.Media = StrategyCarousel, images
	case len(images) == 1:
		plan.Strategy, plan.Media = StrategyPhoto, images
	case plan.Link == "":
		return plan, Validationf("Instagram requires an image, a video or a media link")
	default:
		item, err := ClassifyURL(plan.Link)
		if err != nil {
			return plan, err
		}
		if IsVideoURL(plan.Link) {
			item.Kind = Video
			plan.Strategy = StrategyVideoURL
		} else {
			item.Kind = Image
			plan.Strategy = StrategyImageURL
		}
		plan.Media = []MediaItem{item}
	}
	return plan, nil
}

func selectLinkedIn(plan Plan, media []MediaItem) (Plan, error) {
	if len(media) > 0 {
		return plan, Validationf("LinkedIn posting supports text only")
	}
	if n := utf8.RuneCountInString(plan.Text); n > MaxLinkedInLength {
		return plan, Validationf("LinkedIn post is %d characters; the limit is %d", n, MaxLinkedInLength)
	}
	plan.Strategy = StrategyText
	return plan, nil
}

// TweetLength counts text in runes plus a wrapped link, which Twitter
// shortens to a fixed length.
func TweetLength(text, link string) int {
	n := utf8.RuneCountInString(text)
	if link != "" {
		if n > 0 {
			n++
		}
		n += TweetURLLength
	}
	return n
}

// TweetText joins the message and link the way it is posted.
func TweetText(text, link string) string {
	switch {
	case link == "":
		return text
	case text == "":
		return link
	}
	return text + " " + link
}
