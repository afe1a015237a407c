// Package service joins rate limiting, fetching and pagination into the single
// request/response operation served by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ttscraper/pkg/assembler"
	"ttscraper/pkg/config"
	errs "ttscraper/pkg/errors"
	"ttscraper/pkg/logger"
	"ttscraper/pkg/models"
	"ttscraper/pkg/ratelimit"
	"ttscraper/pkg/tiktok"
)

// Kind classifies a Failure
type Kind string

const (
	KindRateLimited    Kind = "rate_limited"
	KindCookieMissing  Kind = "cookie_missing"
	KindFetchFailed    Kind = "fetch_failed"
	KindPageOutOfRange Kind = "page_out_of_range"
	KindInvalidRequest Kind = "invalid_request"
	KindTimeout        Kind = "timeout"
	KindInternal       Kind = "internal"
)

// Failure is the structured error returned by FetchAndAssemble
type Failure struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap returns the underlying cause
func (f *Failure) Unwrap() error {
	return f.Err
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1
func (f *Failure) RetryAfterSeconds() int {
	secs := int(math.Ceil(f.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// PostFetcher is satisfied by *scraper.Scraper
type PostFetcher interface {
	FetchPosts(ctx context.Context, handle, cookieOverride string, maxPosts int) ([]models.Post, error)
}

// Request is one page request for a profile
type Request struct {
	Handle         string
	Page           int
	PerPage        int
	StartEpoch     *int64
	EndEpoch       *int64
	CookieOverride string
	CallerIdentity string
}

// Meta describes the page returned in a Response
type Meta struct {
	Page             int     `json:"page"`
	TotalPages       int     `json:"total_pages"`
	PostsPerPage     int     `json:"posts_per_page"`
	TotalPosts       int     `json:"total_posts"`
	StartEpoch       *int64  `json:"start_epoch"`
	EndEpoch         *int64  `json:"end_epoch"`
	FirstVideoEpoch  *int64  `json:"first_video_epoch"`
	LastVideoEpoch   *int64  `json:"last_video_epoch"`
	RequestTime      int64   `json:"request_time"`
	Username         string  `json:"username"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Response is a successful FetchAndAssemble result
type Response struct {
	Meta Meta          `json:"meta"`
	Data []models.Post `json:"data"`

	// RateLimit is the caller's limiter decision, surfaced as response headers
	RateLimit ratelimit.Decision `json:"-"`
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now for request_time and processing_time_ms
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service serves paginated post listings
type Service struct {
	limiter  *ratelimit.Limiter
	fetcher  PostFetcher
	maxPosts int
	now      func() time.Time
	logger   logger.Logger
}

// New creates a Service. maxPosts comes from cfg.Fetch.MaxPosts.
func New(cfg *config.Config, limiter *ratelimit.Limiter, fetcher PostFetcher, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.GetLogger()
	}
	if limiter == nil {
		limiter = ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	}

	s := &Service{
		limiter:  limiter,
		fetcher:  fetcher,
		maxPosts: cfg.Fetch.MaxPosts,
		now:      time.Now,
		logger:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchAndAssemble checks the caller's rate limit, validates req, fetches the
// profile and returns the requested page. Every error is a *Failure.
func (s *Service) FetchAndAssemble(ctx context.Context, req Request) (*Response, error) {
	start := s.now()

	decision := s.limiter.Check(req.CallerIdentity)
	if !decision.Allowed {
		logger.LogRateLimit(s.logger, req.CallerIdentity, decision.RetryAfter)
		return nil, &Failure{
			Kind:       KindRateLimited,
			Message:    "rate limit exceeded",
			RetryAfter: decision.RetryAfter,
		}
	}

	handle := tiktok.SanitizeHandle(req.Handle)
	filter := assembler.Filter{Start: req.StartEpoch, End: req.EndEpoch}
	if err := validate(handle, filter, req); err != nil {
		return nil, toFailure(err)
	}

	posts, err := s.fetcher.FetchPosts(ctx, handle, req.CookieOverride, s.maxPosts)
	if err != nil {
		return nil, toFailure(err)
	}

	result, err := assembler.Build(posts, filter, req.Page, req.PerPage)
	if err != nil {
		return nil, toFailure(err)
	}

	meta := Meta{
		Page:         req.Page,
		TotalPages:   result.TotalPages,
		PostsPerPage: req.PerPage,
		TotalPosts:   result.TotalCount,
		StartEpoch:   req.StartEpoch,
		EndEpoch:     req.EndEpoch,
		RequestTime:  start.Unix(),
		Username:     handle,
	}
	if n := len(result.Items); n > 0 {
		first, last := result.Items[0].PostedAt, result.Items[n-1].PostedAt
		meta.FirstVideoEpoch = &first
		meta.LastVideoEpoch = &last
	}

	items := result.Items
	if items == nil {
		items = []models.Post{}
	}

	elapsed := s.now().Sub(start)
	meta.ProcessingTimeMs = math.Round(float64(elapsed.Microseconds())/10) / 100

	s.logger.InfoWithFields("request completed", map[string]interface{}{
		"handle":      handle,
		"page":        req.Page,
		"items":       len(result.Items),
		"total_posts": result.TotalCount,
		"duration_ms": meta.ProcessingTimeMs,
	})

	return &Response{
		Meta:      meta,
		Data:      items,
		RateLimit: decision,
	}, nil
}

func validate(handle string, f assembler.Filter, req Request) error {
	if !tiktok.IsValidHandle(handle) {
		return errs.New(errs.ErrorTypeInvalidRequest, fmt.Sprintf("invalid username %q", handle))
	}
	if f.Start != nil && *f.Start < 0 {
		return errs.New(errs.ErrorTypeInvalidRequest, "start_epoch cannot be negative")
	}
	if f.End != nil && *f.End < 0 {
		return errs.New(errs.ErrorTypeInvalidRequest, "end_epoch cannot be negative")
	}
	return assembler.Validate(f, req.Page, req.PerPage)
}

// toFailure maps pipeline errors onto failure kinds
func toFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: KindTimeout, Message: "request timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &Failure{Kind: KindInternal, Message: "request cancelled", Err: err}
	}

	var e *errs.Error
	if !errors.As(err, &e) {
		return &Failure{Kind: KindInternal, Message: "internal error", Err: err}
	}

	switch e.Type {
	case errs.ErrorTypeCookieMissing:
		return &Failure{Kind: KindCookieMissing, Message: e.Message, Err: err}
	case errs.ErrorTypeFetchFailed:
		return &Failure{Kind: KindFetchFailed, Message: e.Message, Err: err}
	case errs.ErrorTypePageOutOfRange:
		return &Failure{Kind: KindPageOutOfRange, Message: e.Message, Err: err}
	case errs.ErrorTypeInvalidRequest:
		return &Failure{Kind: KindInvalidRequest, Message: e.Message, Err: err}
	default:
		return &Failure{Kind: KindInternal, Message: "internal error", Err: err}
	}
}
