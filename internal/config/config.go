// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-scraper/internal/extract"
)

// Backend names accepted by the pluggable sections.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendChromedp = "chromedp"
	BackendStatic   = "static"
	BackendAuto     = "auto"
	BackendNone     = "none"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Auth      AuthConfig        `mapstructure:"auth"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Worker    WorkerConfig      `mapstructure:"worker"`
	Queue     QueueConfig       `mapstructure:"queue"`
	Dedup     DedupConfig       `mapstructure:"dedup"`
	Cache     CacheConfig       `mapstructure:"cache"`
	Redis     RedisConfig       `mapstructure:"redis"`
	Database  DatabaseConfig    `mapstructure:"database"`
	Browser   BrowserConfig     `mapstructure:"browser"`
	Selectors extract.Selectors `mapstructure:"selectors"`
	RateLimit RateLimitConfig   `mapstructure:"ratelimit"`
	Snapshots SnapshotConfig    `mapstructure:"snapshots"`
	Hosts     HostsConfig       `mapstructure:"hosts"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// WorkerConfig sizes the pool and its retry policy.
type WorkerConfig struct {
	Concurrency       int `mapstructure:"concurrency"`
	MaxAttempts       int `mapstructure:"max_attempts"`
	BackoffBaseMs     int `mapstructure:"backoff_base_ms"`
	BackoffMaxMs      int `mapstructure:"backoff_max_ms"`
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds"`
}

// QueueConfig selects the work queue.
type QueueConfig struct {
	Backend  string `mapstructure:"backend"`
	Capacity int    `mapstructure:"capacity"`
	Prefix   string `mapstructure:"prefix"`
}

// DedupConfig tunes request deduplication.
type DedupConfig struct {
	WindowHours   int    `mapstructure:"window_hours"`
	CacheTTLHours int    `mapstructure:"cache_ttl_hours"`
	CachePrefix   string `mapstructure:"cache_prefix"`
}

// CacheConfig selects the lookaside cache.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
}

// RedisConfig is shared by the redis cache and queue.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig selects and tunes the job and catalog stores.
type DatabaseConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// BrowserConfig selects the page loader.
type BrowserConfig struct {
	Backend            string `mapstructure:"backend"`
	UserAgent          string `mapstructure:"user_agent"`
	WaitTimeoutSeconds int    `mapstructure:"wait_timeout_seconds"`
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds"`
	MaxParallel        int    `mapstructure:"max_parallel"`
	RespectRobots      bool   `mapstructure:"respect_robots"`
	// PromotionThreshold is the body size below which a script-heavy static page
	// is re-loaded headless by the auto backend.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// RateLimitConfig paces page loads per host.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// SnapshotConfig selects where page snapshots go.
type SnapshotConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// HostsConfig restricts which hosts may be scraped. Entries are exact hosts or
// "*.suffix" wildcards; an empty allow list admits every host not denied.
type HostsConfig struct {
	Allow []string `mapstructure:"allow"`
	Deny  []string `mapstructure:"deny"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Selectors = cfg.Selectors.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.backoff_base_ms", 1000)
	v.SetDefault("worker.backoff_max_ms", 0)
	v.SetDefault("worker.job_timeout_seconds", 120)
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.capacity", 256)
	v.SetDefault("queue.prefix", "scrapeQueue")
	v.SetDefault("dedup.window_hours", 24)
	v.SetDefault("dedup.cache_ttl_hours", 24)
	v.SetDefault("dedup.cache_prefix", "scrape:")
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.backend", BackendMemory)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.ensure_schema", true)
	v.SetDefault("browser.backend", BackendChromedp)
	v.SetDefault("browser.user_agent", "catalog-scraper/1.0")
	v.SetDefault("browser.wait_timeout_seconds", 15)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.max_parallel", 3)
	v.SetDefault("browser.respect_robots", false)
	v.SetDefault("browser.promotion_threshold", 2048)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 2)
	v.SetDefault("snapshots.backend", BackendNone)
	v.SetDefault("snapshots.base_dir", "data/snapshots")
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("hosts.allow", []string{})
	v.SetDefault("hosts.deny", []string{})
	for key, value := range selectorDefaults() {
		v.SetDefault("selectors."+key, value)
	}
}

// selectorDefaults keys the default selectors by their config name so each can be
// overridden from the environment.
func selectorDefaults() map[string]string {
	d := extract.DefaultSelectors()
	return map[string]string{
		"nav_region":          d.NavRegion,
		"nav_group":           d.NavGroup,
		"group_heading":       d.GroupHeading,
		"category_link":       d.CategoryLink,
		"tile_region":         d.TileRegion,
		"tile":                d.Tile,
		"tile_title":          d.TileTitle,
		"tile_author":         d.TileAuthor,
		"tile_price":          d.TilePrice,
		"tile_image":          d.TileImage,
		"tile_link":           d.TileLink,
		"detail_marker":       d.DetailMarker,
		"detail_title":        d.DetailTitle,
		"detail_description":  d.DetailDesc,
		"review":              d.Review,
		"review_rating":       d.ReviewRating,
		"review_comment":      d.ReviewComment,
		"breadcrumb_category": d.BreadcrumbCateg,
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be > 0")
	}
	if c.Worker.BackoffBaseMs < 0 || c.Worker.BackoffMaxMs < 0 {
		return fmt.Errorf("worker backoff must be >= 0")
	}
	if c.Worker.JobTimeoutSeconds < 0 {
		return fmt.Errorf("worker.job_timeout_seconds must be >= 0")
	}
	if err := oneOf("queue.backend", c.Queue.Backend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("cache.backend", c.Cache.Backend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if (c.Queue.Backend == BackendRedis || c.Cache.Backend == BackendRedis) && c.Redis.Address == "" {
		return fmt.Errorf("redis.address must be set when a redis backend is selected")
	}
	if err := oneOf("database.backend", c.Database.Backend, BackendMemory, BackendPostgres); err != nil {
		return err
	}
	if c.Database.Backend == BackendPostgres && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set for the postgres backend")
	}
	if err := oneOf("browser.backend", c.Browser.Backend, BackendChromedp, BackendStatic, BackendAuto); err != nil {
		return err
	}
	if c.Browser.MaxParallel < 0 {
		return fmt.Errorf("browser.max_parallel must be >= 0")
	}
	if c.Browser.PromotionThreshold < 0 {
		return fmt.Errorf("browser.promotion_threshold must be >= 0")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("ratelimit.rps must be > 0 when rate limiting is enabled")
	}
	if err := oneOf("snapshots.backend", c.Snapshots.Backend, BackendNone, BackendMemory, BackendLocal, BackendGCS); err != nil {
		return err
	}
	if c.Snapshots.Backend == BackendGCS && c.Snapshots.Bucket == "" {
		return fmt.Errorf("snapshots.bucket must be set for the gcs backend")
	}
	if c.Snapshots.Backend == BackendLocal && c.Snapshots.BaseDir == "" {
		return fmt.Errorf("snapshots.base_dir must be set for the local backend")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}

// Backoff returns the retry base delay and cap.
func (c Config) Backoff() (time.Duration, time.Duration) {
	return time.Duration(c.Worker.BackoffBaseMs) * time.Millisecond,
		time.Duration(c.Worker.BackoffMaxMs) * time.Millisecond
}

// JobTimeout bounds a single attempt.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Worker.JobTimeoutSeconds) * time.Second
}

// DedupWindow is how far back a completed job still satisfies a request.
func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.Dedup.WindowHours) * time.Hour
}

// CacheTTL is the lifetime of a dedup cache entry.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Dedup.CacheTTLHours) * time.Hour
}
