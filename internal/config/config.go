package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Facebook holds Page publishing credentials.
type Facebook struct {
	PageID           string `toml:"page_id"`
	AccessToken      string `toml:"access_token"`
	BaseURL          string `toml:"base_url"`
	ResolvePageToken bool   `toml:"resolve_page_token"`
}

// Twitter holds OAuth 1.0a user-context credentials.
type Twitter struct {
	APIKey       string `toml:"api_key"`
	APISecret    string `toml:"api_secret"`
	AccessToken  string `toml:"access_token"`
	AccessSecret string `toml:"access_secret"`
	APIBaseURL   string `toml:"api_base_url"`
	UploadURL    string `toml:"upload_url"`
}

// Instagram holds Instagram Business account credentials.
type Instagram struct {
	UserID              string `toml:"user_id"`
	AccessToken         string `toml:"access_token"`
	BaseURL             string `toml:"base_url"`
	ResolveLinkPreviews bool   `toml:"resolve_link_previews"`
}

// LinkedIn holds member posting credentials.
type LinkedIn struct {
	AccessToken string `toml:"access_token"`
	PersonID    string `toml:"person_id"`
	BaseURL     string `toml:"base_url"`
}

// Cloudinary configures the primary media host used for Instagram.
type Cloudinary struct {
	CloudName    string `toml:"cloud_name"`
	APIKey       string `toml:"api_key"`
	APISecret    string `toml:"api_secret"`
	UploadPreset string `toml:"upload_preset"`
	Folder       string `toml:"folder"`
	BaseURL      string `toml:"base_url"`
}

// Imgur configures the fallback media host.
type Imgur struct {
	ClientID string `toml:"client_id"`
	BaseURL  string `toml:"base_url"`
}

// HTTP contains transport settings shared by every platform client.
type HTTP struct {
	TimeoutSeconds      int `toml:"timeout_seconds"`
	RetryCount          int `toml:"retry_count"`
	RetryWaitMillis     int `toml:"retry_wait_millis"`
	RetryMaxWaitSeconds int `toml:"retry_max_wait_seconds"`
}

// Retry configures the publish-level retry engine.
type Retry struct {
	MaxAttempts              int `toml:"max_attempts"`
	BackoffUnitSeconds       int `toml:"backoff_unit_seconds"`
	RateLimitFallbackSeconds int `toml:"rate_limit_fallback_seconds"`
	MaxRateLimitWaits        int `toml:"max_rate_limit_waits"`
}

// Poll configures Instagram container readiness polling.
type Poll struct {
	InitialIntervalSeconds int `toml:"initial_interval_seconds"`
	StepSeconds            int `toml:"step_seconds"`
	MaxIntervalSeconds     int `toml:"max_interval_seconds"`
	TimeoutSeconds         int `toml:"timeout_seconds"`
}

// Server configures the HTTP API.
type Server struct {
	Bind        string `toml:"bind"`
	UploadDir   string `toml:"upload_dir"`
	MaxUploadMB int    `toml:"max_upload_mb"`
}

// History configures the sqlite publish ledger.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full socpost configuration.
type Config struct {
	Facebook   Facebook   `toml:"facebook"`
	Twitter    Twitter    `toml:"twitter"`
	Instagram  Instagram  `toml:"instagram"`
	LinkedIn   LinkedIn   `toml:"linkedin"`
	Cloudinary Cloudinary `toml:"cloudinary"`
	Imgur      Imgur      `toml:"imgur"`
	HTTP       HTTP       `toml:"http"`
	Retry      Retry      `toml:"retry"`
	Poll       Poll       `toml:"poll"`
	Server     Server     `toml:"server"`
	History    History    `toml:"history"`
	Logging    Logging    `toml:"logging"`
}

// Load reads the optional TOML file at path, then .env, then environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		// Load never overrides variables already present in the environment.
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Facebook.PageID = envOr("FACEBOOK_PAGE_ID", c.Facebook.PageID)
	c.Facebook.AccessToken = envOr("FACEBOOK_ACCESS_TOKEN", c.Facebook.AccessToken)

	c.Twitter.APIKey = envOr("TWITTER_API_KEY", c.Twitter.APIKey)
	c.Twitter.APISecret = envOr("TWITTER_API_SECRET_KEY", c.Twitter.APISecret)
	c.Twitter.AccessToken = envOr("TWITTER_ACCESS_TOKEN", c.Twitter.AccessToken)
	c.Twitter.AccessSecret = envOr("TWITTER_ACCESS_SECRET_TOKEN", c.Twitter.AccessSecret)

	c.Instagram.UserID = envOr("INSTAGRAM_USER_ID", c.Instagram.UserID)
	c.Instagram.AccessToken = envOr("INSTAGRAM_ACCESS_TOKEN", c.Instagram.AccessToken)

	c.LinkedIn.AccessToken = envOr("LINKEDIN_ACCESS_TOKEN", c.LinkedIn.AccessToken)
	c.LinkedIn.PersonID = envOr("LINKEDIN_PERSON_ID", c.LinkedIn.PersonID)

	c.Cloudinary.CloudName = envOr("CLOUDINARY_CLOUD_NAME", c.Cloudinary.CloudName)
	c.Cloudinary.APIKey = envOr("CLOUDINARY_API_KEY", c.Cloudinary.APIKey)
	c.Cloudinary.APISecret = envOr("CLOUDINARY_API_SECRET", c.Cloudinary.APISecret)
	c.Cloudinary.UploadPreset = envOr("CLOUDINARY_UPLOAD_PRESET", c.Cloudinary.UploadPreset)
	c.Imgur.ClientID = envOr("IMGUR_CLIENT_ID", c.Imgur.ClientID)

	c.Server.Bind = envOr("SOCPOST_BIND", c.Server.Bind)
	c.Server.UploadDir = envOr("SOCPOST_UPLOAD_DIR", c.Server.UploadDir)
	c.History.Path = envOr("SOCPOST_HISTORY_DB", c.History.Path)
	c.Logging.Level = envOr("SOCPOST_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envOr("SOCPOST_LOG_FORMAT", c.Logging.Format)
	if v := os.Getenv("SOCPOST_HISTORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.History.Enabled = b
		}
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Seconds converts a whole-second setting to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
