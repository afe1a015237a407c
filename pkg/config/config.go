package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the scraper and its HTTP API
type Config struct {
	// TikTok session and transport settings
	TikTok TikTokConfig `yaml:"tiktok" json:"tiktok"`

	// Per-caller rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Outbound fetch behaviour
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// HTTP API settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TikTokConfig holds settings for talking to the target site
type TikTokConfig struct {
	Cookie        string        `yaml:"cookie" json:"cookie"`
	BaseURL       string        `yaml:"base_url" json:"base_url"`
	UserAgents    []string      `yaml:"user_agents" json:"user_agents"`
	Proxies       []string      `yaml:"proxies" json:"proxies"`
	ProxyRotation bool          `yaml:"proxy_rotation" json:"proxy_rotation"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`

	// Headers are sent with every profile request, overriding the built-in browser headers
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// RateLimitConfig holds the token bucket parameters applied per caller identity
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// FetchConfig holds concurrency and retry settings for profile fetches
type FetchConfig struct {
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests" json:"max_concurrent_requests"`
	MaxRetries            int           `yaml:"max_retries" json:"max_retries"`
	BackoffStrategy       string        `yaml:"backoff_strategy" json:"backoff_strategy"`
	BackoffBase           time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax            time.Duration `yaml:"backoff_max" json:"backoff_max"`
	BackoffMultiplier     float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	JitterFactor          float64       `yaml:"jitter_factor" json:"jitter_factor"`
	ThrottleDelay         time.Duration `yaml:"throttle_delay" json:"throttle_delay"`
	MaxPosts              int           `yaml:"max_posts" json:"max_posts"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr            string         `yaml:"addr" json:"addr"`
	APIKeys         []APIKeyConfig `yaml:"api_keys" json:"api_keys"`
	AllowedOrigins  []string       `yaml:"allowed_origins" json:"allowed_origins"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// APIKeyConfig describes one accepted API key
type APIKeyConfig struct {
	Key    string `yaml:"key" json:"key"`
	Client string `yaml:"client" json:"client"`
	Tier   string `yaml:"tier" json:"tier"`
	Active bool   `yaml:"active" json:"active"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultUserAgents is the pool of browser identities rotated across attempts
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		TikTok: TikTokConfig{
			BaseURL:       "https://www.tiktok.com",
			UserAgents:    append([]string(nil), DefaultUserAgents...),
			ProxyRotation: true,
			Timeout:       60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 100,
			BurstSize:         20,
		},
		Fetch: FetchConfig{
			MaxConcurrentRequests: 10,
			MaxRetries:            3,
			BackoffStrategy:       "exponential",
			BackoffBase:           500 * time.Millisecond,
			BackoffMax:            0, // no cap
			BackoffMultiplier:     2.0,
			JitterFactor:          0,
			ThrottleDelay:         200 * time.Millisecond,
			MaxPosts:              200,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// envValue returns the first non-empty environment variable among keys
func envValue(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// parseSeconds accepts either a Go duration ("750ms") or a number of seconds ("0.5")
func parseSeconds(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// splitList splits a comma-separated list, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromEnv loads configuration from environment variables.
// TTSCRAPER_* names take precedence over the legacy unprefixed names.
func (c *Config) LoadFromEnv() error {
	var errs []error

	if cookie := envValue("TTSCRAPER_COOKIE", "TIKTOK_COOKIE"); cookie != "" {
		c.TikTok.Cookie = cookie
	}
	if baseURL := envValue("TTSCRAPER_BASE_URL"); baseURL != "" {
		c.TikTok.BaseURL = baseURL
	}
	if ua := envValue("TTSCRAPER_USER_AGENTS"); ua != "" {
		c.TikTok.UserAgents = splitList(ua)
	}
	if proxies := envValue("TTSCRAPER_PROXIES", "PROXIES"); proxies != "" {
		c.TikTok.Proxies = splitList(proxies)
	}
	if rotation := envValue("TTSCRAPER_PROXY_ROTATION", "PROXY_ROTATION"); rotation != "" {
		switch strings.ToLower(rotation) {
		case "1", "true", "yes":
			c.TikTok.ProxyRotation = true
		default:
			c.TikTok.ProxyRotation = false
		}
	}

	intVars := []struct {
		keys   []string
		target *int
	}{
		{[]string{"TTSCRAPER_REQUESTS_PER_MINUTE", "RATE_LIMIT_REQUESTS_PER_MINUTE"}, &c.RateLimit.RequestsPerMinute},
		{[]string{"TTSCRAPER_BURST_SIZE", "RATE_LIMIT_BURST"}, &c.RateLimit.BurstSize},
		{[]string{"TTSCRAPER_MAX_CONCURRENT_REQUESTS", "MAX_CONCURRENT_REQUESTS"}, &c.Fetch.MaxConcurrentRequests},
		{[]string{"TTSCRAPER_MAX_RETRIES", "MAX_RETRIES"}, &c.Fetch.MaxRetries},
		{[]string{"TTSCRAPER_MAX_POSTS"}, &c.Fetch.MaxPosts},
	}
	for _, v := range intVars {
		raw := envValue(v.keys...)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.keys[0], err))
			continue
		}
		*v.target = n
	}

	durationVars := []struct {
		keys   []string
		target *time.Duration
	}{
		{[]string{"TTSCRAPER_REQUEST_TIMEOUT", "REQUEST_TIMEOUT"}, &c.TikTok.Timeout},
		{[]string{"TTSCRAPER_BACKOFF_BASE", "BACKOFF_BASE"}, &c.Fetch.BackoffBase},
		{[]string{"TTSCRAPER_BACKOFF_MAX"}, &c.Fetch.BackoffMax},
		{[]string{"TTSCRAPER_THROTTLE_DELAY", "THROTTLE_DELAY"}, &c.Fetch.ThrottleDelay},
	}
	for _, v := range durationVars {
		raw := envValue(v.keys...)
		if raw == "" {
			continue
		}
		d, err := parseSeconds(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.keys[0], err))
			continue
		}
		*v.target = d
	}

	if strategy := envValue("TTSCRAPER_BACKOFF_STRATEGY"); strategy != "" {
		c.Fetch.BackoffStrategy = strategy
	}
	if jitter := envValue("TTSCRAPER_JITTER_FACTOR"); jitter != "" {
		f, err := strconv.ParseFloat(jitter, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TTSCRAPER_JITTER_FACTOR: %w", err))
		} else {
			c.Fetch.JitterFactor = f
		}
	}

	if addr := envValue("TTSCRAPER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if keys := envValue("TTSCRAPER_API_KEYS"); keys != "" {
		// Keys given through the environment are active with no tier
		c.Server.APIKeys = c.Server.APIKeys[:0]
		for _, key := range splitList(keys) {
			c.Server.APIKeys = append(c.Server.APIKeys, APIKeyConfig{Key: key, Client: "env", Active: true})
		}
	}
	if origins := envValue("TTSCRAPER_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	if logLevel := envValue("TTSCRAPER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat := envValue("TTSCRAPER_LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}
	if logFile := envValue("TTSCRAPER_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile returns the first existing config file in the standard locations
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".ttscraper.yaml",
		".ttscraper.yml",
		"ttscraper.yaml",
		filepath.Join(home, ".config", "ttscraper", "config.yaml"),
		filepath.Join(home, ".config", "ttscraper", "config.yml"),
		filepath.Join(home, ".ttscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// ParseProxyURL parses a proxy entry. A bare host:port is taken as http.
func ParseProxyURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL %q", raw)
	}
	return u, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.TikTok.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("tiktok base URL must be an absolute URL"))
	}
	for _, p := range c.TikTok.Proxies {
		if _, err := ParseProxyURL(p); err != nil {
			errs = append(errs, err)
		}
	}
	if c.TikTok.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Fetch.MaxConcurrentRequests <= 0 {
		errs = append(errs, errors.New("max concurrent requests must be positive"))
	}
	if c.Fetch.MaxRetries <= 0 {
		errs = append(errs, errors.New("max retries must be at least 1"))
	}
	if c.Fetch.BackoffBase < 0 || c.Fetch.BackoffMax < 0 || c.Fetch.ThrottleDelay < 0 {
		errs = append(errs, errors.New("backoff and throttle delays cannot be negative"))
	}
	if c.Fetch.JitterFactor < 0 || c.Fetch.JitterFactor > 1 {
		errs = append(errs, errors.New("jitter factor must be between 0 and 1"))
	}
	switch strings.ToLower(c.Fetch.BackoffStrategy) {
	case "exponential", "linear", "constant":
	default:
		errs = append(errs, fmt.Errorf("unknown backoff strategy %q", c.Fetch.BackoffStrategy))
	}
	if c.Fetch.MaxPosts < 0 {
		errs = append(errs, errors.New("max posts cannot be negative"))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	for i, k := range c.Server.APIKeys {
		if k.Key == "" {
			errs = append(errs, fmt.Errorf("api key %d has an empty key", i))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		errs = append(errs, errors.New("log format must be console or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Keys match the CLI flag names.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if cookie, ok := flags["cookie"].(string); ok && cookie != "" {
		c.TikTok.Cookie = cookie
	}
	if proxies, ok := flags["proxies"].([]string); ok && len(proxies) > 0 {
		c.TikTok.Proxies = proxies
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Fetch.MaxConcurrentRequests = concurrent
	}
	if retries, ok := flags["max-retries"].(int); ok && retries > 0 {
		c.Fetch.MaxRetries = retries
	}
	if maxPosts, ok := flags["max-posts"].(int); ok && maxPosts > 0 {
		c.Fetch.MaxPosts = maxPosts
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if addr, ok := flags["addr"].(string); ok && addr != "" {
		c.Server.Addr = addr
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat, ok := flags["log-format"].(string); ok && logFormat != "" {
		c.Logging.Format = logFormat
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".ttscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// FindAPIKey returns the configured key entry for key, if any
func (c *ServerConfig) FindAPIKey(key string) (APIKeyConfig, bool) {
	for _, k := range c.APIKeys {
		if k.Key == key {
			return k, true
		}
	}
	return APIKeyConfig{}, false
}
