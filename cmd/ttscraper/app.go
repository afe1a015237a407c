package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ttscraper/pkg/auth"
	"ttscraper/pkg/config"
	"ttscraper/pkg/logger"
	"ttscraper/pkg/metrics"
	"ttscraper/pkg/scraper"
	"ttscraper/pkg/service"
	"ttscraper/pkg/tiktok"
)

// app holds the components shared by fetch and serve
type app struct {
	cfg       *config.Config
	log       logger.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	scraper   *scraper.Scraper
	service   *service.Service

	// manager is nil when no credential store could be opened
	manager *auth.Manager
}

// loadConfig applies the global flags on top of flags and loads the configuration
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newApp wires the client, scraper and service. The default stored
// profile backs the cookie when none is configured.
func newApp(cfg *config.Config) (*app, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	client, err := tiktok.NewClient(cfg.TikTok, log.WithField("component", "tiktok"))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	opts := []scraper.Option{scraper.WithMetrics(collector)}

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("credential store unavailable, using configured cookie only")
		manager = nil
	} else {
		opts = append(opts, scraper.WithCookieSource(auth.StoredCookie{Manager: manager}))
	}

	s := scraper.New(cfg, client, log.WithField("component", "scraper"), opts...)
	svc := service.New(cfg, nil, s, log.WithField("component", "service"))

	return &app{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		collector: collector,
		scraper:   s,
		service:   svc,
		manager:   manager,
	}, nil
}
