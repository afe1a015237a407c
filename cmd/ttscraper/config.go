package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ttscraper/pkg/auth"
	"ttscraper/pkg/config"
	"ttscraper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage ttscraper configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (TTSCRAPER_*, and the unprefixed legacy names)
  - .env files (./.env and ~/.ttscraper.env)
  - Configuration file
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created in the current directory as '.ttscraper.yaml' unless a
different path is given with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source.

Cookies and API keys are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# ttscraper configuration file
#
# Every option can also be set through environment variables prefixed with
# TTSCRAPER_, for example TTSCRAPER_COOKIE or TTSCRAPER_MAX_RETRIES.

tiktok:
  # Cookie header of a logged-in browser session. Prefer 'ttscraper auth login'
  # over storing it here.
  cookie: ""
  base_url: "https://www.tiktok.com"
  # Browser identities rotated across attempts. Empty uses the built-in list.
  user_agents: []
  # HTTP proxies, rotated across attempts when proxy_rotation is on
  proxies: []
  proxy_rotation: true
  # Per-request timeout
  timeout: 60s
  # Extra request headers, merged over the built-in browser headers
  # headers:
  #   Accept-Language: "en-GB,en;q=0.9"

# Token bucket applied per API key (or to the CLI as a whole)
rate_limit:
  requests_per_minute: 100
  burst_size: 20

fetch:
  # Profile page requests in flight at once
  max_concurrent_requests: 10
  # Total attempts per profile, including the first
  max_retries: 3
  # exponential, linear or constant
  backoff_strategy: exponential
  backoff_base: 500ms
  # 0 means no cap
  backoff_max: 0s
  backoff_multiplier: 2.0
  # 0 to 1, fraction of each delay randomized
  jitter_factor: 0
  # Minimum spacing between outbound requests
  throttle_delay: 200ms
  # Posts kept per profile, newest first
  max_posts: 200

server:
  addr: ":8000"
  api_keys:
    - key: "change-me"
      client: "local"
      tier: "free"
      active: true
  allowed_origins: ["*"]
  shutdown_timeout: 10s

logging:
  # debug, info, warn, error
  level: info
  # console or json
  format: console
  # Optional file receiving JSON logs
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".ttscraper.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s (remove it first to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	ui.NewPrinter(out).Success("Configuration file created: " + path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "1. Replace the example API key and store a cookie with 'ttscraper auth login'")
	fmt.Fprintln(out, "2. Run 'ttscraper config validate' to check the configuration")
	fmt.Fprintln(out, "3. Fetch posts with 'ttscraper fetch <handle>' or start the API with 'ttscraper serve'")
	return nil
}

// maskedConfig returns a copy of cfg safe to print
func maskedConfig(cfg *config.Config) config.Config {
	display := *cfg
	if display.TikTok.Cookie != "" {
		display.TikTok.Cookie = auth.MaskCookie(display.TikTok.Cookie)
	}

	display.Server.APIKeys = make([]config.APIKeyConfig, len(cfg.Server.APIKeys))
	for i, k := range cfg.Server.APIKeys {
		k.Key = auth.MaskString(k.Key)
		display.Server.APIKeys[i] = k
	}
	return display
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	display := maskedConfig(cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(data))

	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source == "" {
		source = "(none found, defaults and environment only)"
	}
	fmt.Fprintf(out, "\n# configuration file: %s\n", source)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return errors.New("no configuration file found, specify one with --config")
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.Info("Validating configuration", path)

	cfg, err := config.Load(path, nil)
	if err != nil {
		return err
	}

	var warnings []string
	if cfg.TikTok.Cookie == "" {
		warnings = append(warnings, "no cookie configured; a stored profile or X-TikTok-Cookie header will be needed")
	}
	if len(cfg.Server.APIKeys) == 0 {
		warnings = append(warnings, "no API keys configured; the HTTP API will reject every /v1 request")
	}
	for _, k := range cfg.Server.APIKeys {
		if k.Key == "change-me" {
			warnings = append(warnings, "the example API key is still configured")
		}
	}

	if len(warnings) > 0 {
		p.Warning("Configuration warnings")
		for _, w := range warnings {
			fmt.Fprintf(p.Writer(), "  - %s\n", w)
		}
		fmt.Fprintln(p.Writer())
	}

	p.Success("Configuration is valid")

	fmt.Fprintln(p.Writer(), "\nConfiguration summary:")
	fmt.Fprintf(p.Writer(), "  Rate limit: %d requests/minute, burst %d\n", cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	fmt.Fprintf(p.Writer(), "  Concurrent requests: %d\n", cfg.Fetch.MaxConcurrentRequests)
	fmt.Fprintf(p.Writer(), "  Attempts per profile: %d (%s backoff from %s)\n", cfg.Fetch.MaxRetries, cfg.Fetch.BackoffStrategy, cfg.Fetch.BackoffBase)
	fmt.Fprintf(p.Writer(), "  Proxies: %d\n", len(cfg.TikTok.Proxies))
	fmt.Fprintf(p.Writer(), "  Listen address: %s\n", cfg.Server.Addr)
	fmt.Fprintf(p.Writer(), "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
