package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.RateLimit.RequestsPerMinute != 100 {
		t.Errorf("Expected default requests per minute to be 100, got %d", config.RateLimit.RequestsPerMinute)
	}
	if config.RateLimit.BurstSize != 20 {
		t.Errorf("Expected default burst size to be 20, got %d", config.RateLimit.BurstSize)
	}
	if config.Fetch.MaxConcurrentRequests != 10 {
		t.Errorf("Expected default max concurrent requests to be 10, got %d", config.Fetch.MaxConcurrentRequests)
	}
	if config.Fetch.BackoffBase != 500*time.Millisecond {
		t.Errorf("Expected default backoff base to be 500ms, got %v", config.Fetch.BackoffBase)
	}
	if config.Fetch.BackoffMax != 0 || config.Fetch.JitterFactor != 0 {
		t.Errorf("Expected backoff to be uncapped and without jitter by default")
	}
	if len(config.TikTok.UserAgents) == 0 {
		t.Error("Expected a default user agent pool")
	}

	// Defaults must validate on their own
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid, got: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TTSCRAPER_COOKIE", "sessionid=abc")
	t.Setenv("TTSCRAPER_REQUESTS_PER_MINUTE", "30")
	t.Setenv("TTSCRAPER_PROXIES", "http://p1:8080, http://p2:8080,")
	t.Setenv("TTSCRAPER_PROXY_ROTATION", "false")
	t.Setenv("TTSCRAPER_BACKOFF_BASE", "0.25")
	t.Setenv("TTSCRAPER_THROTTLE_DELAY", "50ms")
	t.Setenv("TTSCRAPER_API_KEYS", "k1,k2")
	t.Setenv("TTSCRAPER_LOG_LEVEL", "debug")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if config.TikTok.Cookie != "sessionid=abc" {
		t.Errorf("Expected cookie to be sessionid=abc, got %s", config.TikTok.Cookie)
	}
	if config.RateLimit.RequestsPerMinute != 30 {
		t.Errorf("Expected requests per minute to be 30, got %d", config.RateLimit.RequestsPerMinute)
	}
	if len(config.TikTok.Proxies) != 2 || config.TikTok.Proxies[1] != "http://p2:8080" {
		t.Errorf("Expected two proxies, got %v", config.TikTok.Proxies)
	}
	if config.TikTok.ProxyRotation {
		t.Error("Expected proxy rotation to be disabled")
	}
	if config.Fetch.BackoffBase != 250*time.Millisecond {
		t.Errorf("Expected backoff base 250ms, got %v", config.Fetch.BackoffBase)
	}
	if config.Fetch.ThrottleDelay != 50*time.Millisecond {
		t.Errorf("Expected throttle delay 50ms, got %v", config.Fetch.ThrottleDelay)
	}
	if len(config.Server.APIKeys) != 2 || !config.Server.APIKeys[0].Active {
		t.Errorf("Expected two active API keys, got %+v", config.Server.APIKeys)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level to be debug, got %s", config.Logging.Level)
	}
}

func TestLoadFromEnvLegacyNames(t *testing.T) {
	t.Setenv("TIKTOK_COOKIE", "legacy=1")
	t.Setenv("MAX_CONCURRENT_REQUESTS", "4")
	t.Setenv("REQUEST_TIMEOUT", "15")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if config.TikTok.Cookie != "legacy=1" {
		t.Errorf("Expected legacy cookie, got %q", config.TikTok.Cookie)
	}
	if config.Fetch.MaxConcurrentRequests != 4 {
		t.Errorf("Expected 4 concurrent requests, got %d", config.Fetch.MaxConcurrentRequests)
	}
	if config.TikTok.Timeout != 15*time.Second {
		t.Errorf("Expected 15s timeout, got %v", config.TikTok.Timeout)
	}
}

func TestLoadFromEnvPrefixedWins(t *testing.T) {
	t.Setenv("TIKTOK_COOKIE", "legacy=1")
	t.Setenv("TTSCRAPER_COOKIE", "prefixed=1")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}
	if config.TikTok.Cookie != "prefixed=1" {
		t.Errorf("Expected prefixed variable to win, got %q", config.TikTok.Cookie)
	}
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("TTSCRAPER_MAX_RETRIES", "many")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	if err == nil {
		t.Fatal("Expected an error for a non-numeric value")
	}
	if !strings.Contains(err.Error(), "TTSCRAPER_MAX_RETRIES") {
		t.Errorf("Expected error to name the variable, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
tiktok:
  cookie: "from-file"
  proxies:
    - "http://proxy.local:3128"
rate_limit:
  requests_per_minute: 45
  burst_size: 5
fetch:
  max_retries: 5
  backoff_base: 1s
  backoff_max: 8s
server:
  api_keys:
    - key: prod_key_001
      client: Production Client
      tier: enterprise
      active: true
logging:
  level: warn
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	config := DefaultConfig()
	if err := config.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load config file: %v", err)
	}

	if config.TikTok.Cookie != "from-file" {
		t.Errorf("Expected cookie from file, got %q", config.TikTok.Cookie)
	}
	if config.RateLimit.RequestsPerMinute != 45 || config.RateLimit.BurstSize != 5 {
		t.Errorf("Unexpected rate limit: %+v", config.RateLimit)
	}
	if config.Fetch.MaxRetries != 5 {
		t.Errorf("Expected 5 retries, got %d", config.Fetch.MaxRetries)
	}
	if config.Fetch.BackoffBase != time.Second || config.Fetch.BackoffMax != 8*time.Second {
		t.Errorf("Unexpected backoff settings: %v / %v", config.Fetch.BackoffBase, config.Fetch.BackoffMax)
	}
	// Values absent from the file keep their defaults
	if config.Fetch.MaxConcurrentRequests != 10 {
		t.Errorf("Expected default concurrency to survive, got %d", config.Fetch.MaxConcurrentRequests)
	}

	key, ok := config.Server.FindAPIKey("prod_key_001")
	if !ok || key.Tier != "enterprise" {
		t.Errorf("Expected API key from file, got %+v (found=%v)", key, ok)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero rpm", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, true},
		{"zero burst", func(c *Config) { c.RateLimit.BurstSize = 0 }, true},
		{"zero retries", func(c *Config) { c.Fetch.MaxRetries = 0 }, true},
		{"jitter out of range", func(c *Config) { c.Fetch.JitterFactor = 1.5 }, true},
		{"unknown strategy", func(c *Config) { c.Fetch.BackoffStrategy = "fibonacci" }, true},
		{"relative base url", func(c *Config) { c.TikTok.BaseURL = "tiktok.com" }, true},
		{"bad proxy", func(c *Config) { c.TikTok.Proxies = []string{"http://"} }, true},
		{"proxy with space in host", func(c *Config) { c.TikTok.Proxies = []string{"bad host:80"} }, true},
		{"bare host:port proxy", func(c *Config) { c.TikTok.Proxies = []string{"proxy.local:3128"} }, false},
		{"socks proxy", func(c *Config) { c.TikTok.Proxies = []string{"socks5://user:pw@10.0.0.1:1080"} }, false},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"empty api key", func(c *Config) { c.Server.APIKeys = []APIKeyConfig{{Client: "x"}} }, true},
		{"linear strategy", func(c *Config) { c.Fetch.BackoffStrategy = "linear" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseProxyURL(t *testing.T) {
	u, err := ParseProxyURL("  proxy.local:3128 ")
	if err != nil {
		t.Fatalf("ParseProxyURL() error = %v", err)
	}
	if u.String() != "http://proxy.local:3128" {
		t.Errorf("ParseProxyURL() = %s, want http://proxy.local:3128", u)
	}

	if _, err := ParseProxyURL(""); err == nil {
		t.Error("expected an error for an empty proxy")
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()
	config.MergeCommandLineFlags(map[string]interface{}{
		"cookie":     "flag-cookie",
		"concurrent": 3,
		"max-posts":  50,
		"log-level":  "error",
		"rate-limit": 0, // ignored
	})

	if config.TikTok.Cookie != "flag-cookie" {
		t.Errorf("Expected flag cookie, got %q", config.TikTok.Cookie)
	}
	if config.Fetch.MaxConcurrentRequests != 3 {
		t.Errorf("Expected 3 concurrent requests, got %d", config.Fetch.MaxConcurrentRequests)
	}
	if config.Fetch.MaxPosts != 50 {
		t.Errorf("Expected 50 max posts, got %d", config.Fetch.MaxPosts)
	}
	if config.RateLimit.RequestsPerMinute != 100 {
		t.Errorf("Zero-valued flag should not override, got %d", config.RateLimit.RequestsPerMinute)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	original := DefaultConfig()
	original.TikTok.Cookie = "saved"
	original.Fetch.BackoffMax = 4 * time.Second
	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := DefaultConfig()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.TikTok.Cookie != "saved" || loaded.Fetch.BackoffMax != 4*time.Second {
		t.Errorf("Round trip lost values: %+v", loaded.Fetch)
	}
}
