package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ttscraper/internal/server"
	"ttscraper/pkg/ui"
)

var (
	// Serve command flags
	serveAddr      string
	serveLogFormat string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API.

Endpoints:
  GET /                  service information
  GET /health            health and outbound request counters
  GET /metrics           Prometheus metrics
  GET /v1/tiktok/posts   paginated posts (X-API-Key required)

API keys are read from the server.api_keys section of the configuration
file or from TTSCRAPER_API_KEYS. The server stops gracefully on SIGINT or
SIGTERM.`,
	Example: `  # Serve on the configured address
  ttscraper serve

  # Serve on another port with JSON logs
  ttscraper serve --addr :9000 --log-format json`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8000)")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "json", "log format (console, json)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(map[string]interface{}{
		"addr":       serveAddr,
		"log-format": serveLogFormat,
	})
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	if len(cfg.Server.APIKeys) == 0 {
		ui.NewPrinter(os.Stderr).Warning("No API keys configured", "every /v1 request will be rejected")
	}

	router := server.NewRouter(&server.Deps{
		Config:   &cfg.Server,
		Service:  a.service,
		Health:   a.collector,
		Recorder: a.collector,
		Gatherer: a.registry,
		Version:  version,
		Logger:   a.log.WithField("component", "http"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.InfoWithFields("ttscraper API starting", map[string]interface{}{
		"version":  version,
		"addr":     cfg.Server.Addr,
		"api_keys": len(cfg.Server.APIKeys),
	})

	return server.New(&cfg.Server, router, a.log).Run(ctx)
}
