package scraper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"

	"ttscraper/pkg/config"
	errs "ttscraper/pkg/errors"
	"ttscraper/pkg/extractor"
	"ttscraper/pkg/logger"
	"ttscraper/pkg/models"
	"ttscraper/pkg/normalizer"
	"ttscraper/pkg/ratelimit"
	"ttscraper/pkg/retry"
	"ttscraper/pkg/tiktok"
)

// Attempt describes one HTTP attempt within a FetchPosts call
type Attempt struct {
	Number    int
	Proxy     string
	UserAgent string
	StartedAt time.Time
	Err       error
}

// Option configures a Scraper
type Option func(*Scraper)

// WithCookieSource sets the fallback used when no cookie is configured
func WithCookieSource(src CookieSource) Option {
	return func(s *Scraper) { s.cookies = src }
}

// WithMetrics sets the telemetry sink
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Scraper) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSleeper replaces the backoff sleep
func WithSleeper(sleep retry.Sleeper) Option {
	return func(s *Scraper) { s.sleep = sleep }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

// WithAttemptHook registers a callback invoked after every attempt
func WithAttemptHook(hook func(Attempt)) Option {
	return func(s *Scraper) { s.onAttempt = hook }
}

// Scraper orchestrates fetch, extraction and normalization for a profile
type Scraper struct {
	client    PageFetcher
	extractor *extractor.Extractor
	gate      *semaphore.Weighted
	pacer     *ratelimit.Pacer
	config    *config.Config
	cookies   CookieSource
	metrics   MetricsRecorder
	sleep     retry.Sleeper
	now       func() time.Time
	onAttempt func(Attempt)
	logger    logger.Logger
}

// New creates a Scraper around client
func New(cfg *config.Config, client PageFetcher, log logger.Logger, opts ...Option) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}

	slots := cfg.Fetch.MaxConcurrentRequests
	if slots < 1 {
		slots = 1
	}

	s := &Scraper{
		client:    client,
		extractor: extractor.New(log),
		gate:      semaphore.NewWeighted(int64(slots)),
		pacer:     ratelimit.NewPacer(cfg.Fetch.ThrottleDelay),
		config:    cfg,
		metrics:   nopRecorder{},
		sleep:     retry.Wait,
		now:       time.Now,
		logger:    log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ResolveCookie picks the explicit override, then the configured cookie,
// then the cookie source. It fails with a cookie_missing error when none is set.
func (s *Scraper) ResolveCookie(override string) (string, error) {
	if cookie := strings.TrimSpace(override); cookie != "" {
		return cookie, nil
	}
	if cookie := strings.TrimSpace(s.config.TikTok.Cookie); cookie != "" {
		return cookie, nil
	}

	if s.cookies != nil {
		cookie, err := s.cookies.Cookie()
		if err != nil {
			s.logger.WithError(err).Debug("no stored cookie available")
		} else if cookie = strings.TrimSpace(cookie); cookie != "" {
			return cookie, nil
		}
	}

	return "", errs.New(errs.ErrorTypeCookieMissing, "no TikTok session cookie configured")
}

// FetchPosts downloads handle's profile and returns its posts, newest first,
// deduplicated by id and truncated to maxPosts (non-positive means no limit).
func (s *Scraper) FetchPosts(ctx context.Context, handle, cookieOverride string, maxPosts int) ([]models.Post, error) {
	handle = tiktok.SanitizeHandle(handle)

	cookie, err := s.ResolveCookie(cookieOverride)
	if err != nil {
		s.metrics.RecordFetch(string(errs.ErrorTypeCookieMissing), 0)
		return nil, err
	}

	log := s.logger.WithField("handle", handle)
	start := s.now()

	posts, err := retry.DoWithResult(ctx, func(ctx context.Context, attempt int) ([]models.Post, error) {
		return s.fetchOnce(ctx, handle, cookie, attempt)
	}, &retry.Config{
		MaxAttempts: s.config.Fetch.MaxRetries,
		Backoff:     retry.NewBackoff(s.config.Fetch),
		RetryIf:     retry.DefaultRetryIf,
		Sleep:       s.sleep,
		Logger:      log,
		OnTransition: func(from, to retry.State, attempt int) {
			log.DebugWithFields("fetch state changed", map[string]interface{}{
				"from":    from.String(),
				"to":      to.String(),
				"attempt": attempt,
			})
		},
	})
	duration := s.now().Sub(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.RecordFetch("cancelled", duration)
			return nil, ctxErr
		}

		s.metrics.RecordFetch(string(errs.ErrorTypeFetchFailed), duration)
		log.WithError(err).Error("fetch failed")
		return nil, &errs.Error{
			Type:    errs.ErrorTypeFetchFailed,
			Message: fmt.Sprintf("could not fetch posts for @%s", handle),
			Err:     err,
		}
	}

	result := Finalize(posts, maxPosts)

	s.metrics.RecordFetch("success", duration)
	log.InfoWithFields("fetch completed", map[string]interface{}{
		"posts":       len(result),
		"duration_ms": duration.Milliseconds(),
	})

	return result, nil
}

// fetchOnce runs a single attempt. The admission slot is held only for the
// request, extraction and normalization, never across a backoff sleep.
func (s *Scraper) fetchOnce(ctx context.Context, handle, cookie string, number int) (posts []models.Post, err error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.gate.Release(1)

	id := s.client.NextIdentity()
	attempt := Attempt{
		Number:    number,
		Proxy:     id.Proxy,
		UserAgent: id.UserAgent,
		StartedAt: s.now(),
	}

	defer func() {
		attempt.Err = err
		outcome := "success"
		if err != nil {
			outcome = string(errs.TypeOf(err))
		}
		s.metrics.RecordAttempt(outcome, s.now().Sub(attempt.StartedAt))
		if s.onAttempt != nil {
			s.onAttempt(attempt)
		}
	}()

	page, err := s.client.FetchProfilePage(ctx, handle, cookie, id)
	if err != nil {
		return nil, err
	}

	raw, strategy := s.extractor.ExtractNamed(page.Body)
	if len(raw) == 0 {
		return nil, errs.New(errs.ErrorTypeExtractionEmpty, "no embedded items found in profile page")
	}

	posts, rejected := normalizer.NormalizeAll(raw, handle)
	s.metrics.RecordExtraction(strategy, len(raw), rejected)
	if rejected > 0 {
		s.logger.DebugWithFields("items rejected during normalization", map[string]interface{}{
			"handle":   handle,
			"rejected": rejected,
			"accepted": len(posts),
		})
	}

	if len(posts) == 0 {
		return nil, errs.New(errs.ErrorTypeNormalizationEmpty, fmt.Sprintf("all %d extracted items were rejected", len(raw)))
	}

	return posts, nil
}

// Finalize deduplicates by id keeping the first occurrence, sorts by posting
// time descending (stable) and truncates to maxPosts when it is positive.
func Finalize(posts []models.Post, maxPosts int) []models.Post {
	unique := lo.UniqBy(posts, func(p models.Post) string {
		return p.ID
	})

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].PostedAt > unique[j].PostedAt
	})

	if maxPosts > 0 && len(unique) > maxPosts {
		unique = unique[:maxPosts]
	}
	return unique
}
