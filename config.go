package sitemaps

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

var siteURLPattern = regexp.MustCompile(`^https?://[^/\s]+`)

// SiteConfig holds all configuration for a sitemaps site.
type SiteConfig struct {
	Name string `yaml:"name"` // Site name (default "Site")
	URL  string `yaml:"url"`  // Canonical URL (default "http://localhost:3000")

	Addr         string `yaml:"addr"`          // Listen address (default ":3000")
	DatabasePath string `yaml:"database_path"` // SQLite path (default "data/content.db")
	StaticDir    string `yaml:"static_dir"`    // Uploads root (default "public")

	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"` // "text" (default) or "json"

	// Admin is enabled only when AdminPassword is set.
	AdminPassword string `yaml:"admin_password"`
	SessionSecret string `yaml:"session_secret"`
	CookieSecure  bool   `yaml:"cookie_secure"`

	// DisableStylesheets stops documents from referencing the XSL views.
	DisableStylesheets bool `yaml:"disable_stylesheets"`

	Feeds      FeedConfig      `yaml:"feeds"`
	Permalinks PermalinkConfig `yaml:"permalinks"`
	Cache      CacheConfig     `yaml:"cache"`
}

// FeedConfig selects which feeds exist and what they contain.
type FeedConfig struct {
	// PostTypes are bucketed into day sitemaps (default ["post"]).
	PostTypes []string `yaml:"post_types"`
	// CustomTaxonomies are listed in sitemap-taxonomies.xml. Empty disables it.
	CustomTaxonomies []string   `yaml:"custom_taxonomies"`
	TagsDisabled     bool       `yaml:"tags_disabled"`
	News             NewsConfig `yaml:"news"`
}

// NewsConfig configures the news sitemap.
type NewsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Category string `yaml:"category"` // category slug (default "news")
	Days     int    `yaml:"days"`     // look-back window (default 2)
	Limit    int    `yaml:"limit"`    // max entries (default 1000)
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // "memory" (default) or "redis"
	TTL     time.Duration `yaml:"ttl"`     // default 1h
	Redis   RedisConfig   `yaml:"redis"`
}

// NewsEnabled reports whether the news sitemap is served.
func (f FeedConfig) NewsEnabled() bool {
	return !f.News.Disabled && f.News.Category != ""
}

// TagsEnabled reports whether the tags sitemap is served.
func (f FeedConfig) TagsEnabled() bool {
	return !f.TagsDisabled
}

// TaxonomiesEnabled reports whether any custom taxonomy is configured.
func (f FeedConfig) TaxonomiesEnabled() bool {
	return len(f.CustomTaxonomies) > 0
}

// AdminEnabled reports whether the admin routes are mounted.
func (c *SiteConfig) AdminEnabled() bool {
	return c.AdminPassword != ""
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Site"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	c.URL = strings.TrimSuffix(c.URL, "/")
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/content.db"
	}
	if c.StaticDir == "" {
		c.StaticDir = "public"
	}
	if c.LogFormat == "" {
		c.LogFormat = LogFormatText
	}
	c.Feeds.setDefaults()
	c.Permalinks.setDefaults()
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheBackendMemory
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}
}

func (f *FeedConfig) setDefaults() {
	f.PostTypes = FilterEmpty(f.PostTypes)
	if len(f.PostTypes) == 0 {
		f.PostTypes = []string{PostTypePost}
	}
	f.CustomTaxonomies = FilterEmpty(f.CustomTaxonomies)
	if f.News.Category == "" {
		f.News.Category = "news"
	}
	if f.News.Days == 0 {
		f.News.Days = 2
	}
	if f.News.Limit == 0 {
		f.News.Limit = 1000
	}
}

// Validate validates the configuration.
func (c *SiteConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, validation.Match(siteURLPattern)),
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DatabasePath, validation.Required),
		validation.Field(&c.LogFormat, validation.In(LogFormatText, LogFormatJSON)),
		validation.Field(&c.SessionSecret, validation.When(c.AdminEnabled(), validation.Required, validation.Length(16, 0))),
	); err != nil {
		return err
	}
	if err := c.Feeds.Validate(); err != nil {
		return fmt.Errorf("feeds: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// Validate validates the feed configuration.
func (f *FeedConfig) Validate() error {
	if err := validation.ValidateStruct(f,
		validation.Field(&f.PostTypes, validation.Required),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&f.News,
		validation.Field(&f.News.Days, validation.Min(1)),
		validation.Field(&f.News.Limit, validation.Min(1), validation.Max(50000)),
	)
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(CacheBackendMemory, CacheBackendRedis)),
		validation.Field(&c.TTL, validation.Min(time.Second)),
		validation.Field(&c.Redis, validation.When(c.Backend == CacheBackendRedis, validation.By(func(any) error {
			if c.Redis.Addr == "" {
				return errors.New("addr is required for the redis backend")
			}
			return nil
		}))),
	)
}

// LoadConfig reads a YAML config file, expanding ${VAR} references from the
// environment, then applies environment overrides and defaults and validates
// the result. An empty filename skips the file.
func LoadConfig(filename string) (SiteConfig, error) {
	var cfg SiteConfig
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return SiteConfig{}, fmt.Errorf("read config file %s: %w", filename, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return SiteConfig{}, fmt.Errorf("parse config file %s: %w", filename, err)
		}
	}
	cfg.applyEnv()
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return SiteConfig{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv lets deployment environments override the most common settings.
func (c *SiteConfig) applyEnv() {
	c.Name = EnvOr("SITE_NAME", c.Name)
	c.URL = EnvOr("SITE_URL", c.URL)
	c.Addr = EnvOr("ADDR", c.Addr)
	c.DatabasePath = EnvOr("DATABASE_PATH", c.DatabasePath)
	c.AdminPassword = EnvOr("ADMIN_PASSWORD", c.AdminPassword)
	c.SessionSecret = EnvOr("ADMIN_SESSION_SECRET", c.SessionSecret)
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		c.CookieSecure = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Backend = CacheBackendRedis
		c.Cache.Redis.Addr = v
	}
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Option configures additional App behavior.
type Option func(*App)

// WithHooks installs feed filter hooks.
func WithHooks(h Hooks) Option {
	return func(a *App) {
		a.Hooks = h
	}
}

// WithStore uses an already opened store instead of opening DatabasePath.
// The caller keeps ownership and must close it.
func WithStore(s *Store) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithCache replaces the configured cache backend.
func WithCache(c Cache) Option {
	return func(a *App) {
		a.Cache = c
	}
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.Logger = l
	}
}

// WithClock overrides the time source used for lastmod values.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}
