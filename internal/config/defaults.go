package config

import "strings"

const (
	defaultGraphBaseURL      = "https://graph.facebook.com/v23.0"
	defaultTwitterAPIURL     = "https://api.twitter.com"
	defaultTwitterUploadURL  = "https://upload.twitter.com/1.1/media/upload.json"
	defaultLinkedInBaseURL   = "https://api.linkedin.com/v2"
	defaultCloudinaryBaseURL = "https://api.cloudinary.com/v1_1"
	defaultImgurBaseURL      = "https://api.imgur.com/3"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Facebook: Facebook{
			BaseURL:          defaultGraphBaseURL,
			ResolvePageToken: true,
		},
		Twitter: Twitter{
			APIBaseURL: defaultTwitterAPIURL,
			UploadURL:  defaultTwitterUploadURL,
		},
		Instagram: Instagram{
			BaseURL: defaultGraphBaseURL,
		},
		LinkedIn: LinkedIn{
			BaseURL: defaultLinkedInBaseURL,
		},
		Cloudinary: Cloudinary{
			Folder:  "socmed_poster",
			BaseURL: defaultCloudinaryBaseURL,
		},
		Imgur: Imgur{
			BaseURL: defaultImgurBaseURL,
		},
		HTTP: HTTP{
			TimeoutSeconds:      30,
			RetryCount:          2,
			RetryWaitMillis:     1000,
			RetryMaxWaitSeconds: 10,
		},
		Retry: Retry{
			MaxAttempts:              3,
			BackoffUnitSeconds:       3,
			RateLimitFallbackSeconds: 900,
			MaxRateLimitWaits:        3,
		},
		Poll: Poll{
			InitialIntervalSeconds: 5,
			StepSeconds:            5,
			MaxIntervalSeconds:     30,
			TimeoutSeconds:         180,
		},
		Server: Server{
			Bind:        "127.0.0.1:5000",
			UploadDir:   "uploads",
			MaxUploadMB: 100,
		},
		History: History{
			Enabled: true,
			Path:    "socpost.sqlite",
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}

func (c *Config) normalize() {
	def := Default()
	trim := func(s *string, fallback string) {
		*s = strings.TrimSpace(*s)
		if *s == "" {
			*s = fallback
		}
	}
	trim(&c.Facebook.BaseURL, def.Facebook.BaseURL)
	trim(&c.Twitter.APIBaseURL, def.Twitter.APIBaseURL)
	trim(&c.Twitter.UploadURL, def.Twitter.UploadURL)
	trim(&c.Instagram.BaseURL, def.Instagram.BaseURL)
	trim(&c.LinkedIn.BaseURL, def.LinkedIn.BaseURL)
	trim(&c.Cloudinary.BaseURL, def.Cloudinary.BaseURL)
	trim(&c.Cloudinary.Folder, def.Cloudinary.Folder)
	trim(&c.Imgur.BaseURL, def.Imgur.BaseURL)
	trim(&c.Server.Bind, def.Server.Bind)
	trim(&c.Server.UploadDir, def.Server.UploadDir)
	trim(&c.History.Path, def.History.Path)
	trim(&c.Logging.Level, def.Logging.Level)
	trim(&c.Logging.Format, def.Logging.Format)

	positive := func(v *int, fallback int) {
		if *v <= 0 {
			*v = fallback
		}
	}
	positive(&c.HTTP.TimeoutSeconds, def.HTTP.TimeoutSeconds)
	positive(&c.HTTP.RetryWaitMillis, def.HTTP.RetryWaitMillis)
	positive(&c.HTTP.RetryMaxWaitSeconds, def.HTTP.RetryMaxWaitSeconds)
	if c.HTTP.RetryCount < 0 {
		c.HTTP.RetryCount = 0
	}
	positive(&c.Retry.MaxAttempts, def.Retry.MaxAttempts)
	positive(&c.Retry.BackoffUnitSeconds, def.Retry.BackoffUnitSeconds)
	positive(&c.Retry.RateLimitFallbackSeconds, def.Retry.RateLimitFallbackSeconds)
	positive(&c.Retry.MaxRateLimitWaits, def.Retry.MaxRateLimitWaits)
	positive(&c.Poll.InitialIntervalSeconds, def.Poll.InitialIntervalSeconds)
	positive(&c.Poll.StepSeconds, def.Poll.StepSeconds)
	positive(&c.Poll.MaxIntervalSeconds, def.Poll.MaxIntervalSeconds)
	positive(&c.Poll.TimeoutSeconds, def.Poll.TimeoutSeconds)
	positive(&c.Server.MaxUploadMB, def.Server.MaxUploadMB)
}
