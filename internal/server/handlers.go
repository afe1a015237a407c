package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ttscraper/pkg/logger"
	"ttscraper/pkg/metrics"
	"ttscraper/pkg/service"
)

const (
	defaultPage    = 1
	defaultPerPage = 20
)

// PostService is satisfied by *service.Service
type PostService interface {
	FetchAndAssemble(ctx context.Context, req service.Request) (*service.Response, error)
}

// HealthReporter is satisfied by *metrics.Collector
type HealthReporter interface {
	Snapshot() metrics.HealthSnapshot
}

type handler struct {
	name    string
	version string
	svc     PostService
	health  HealthReporter
	now     func() time.Time
	logger  logger.Logger
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": h.name,
		"version": h.version,
		"status":  "operational",
	})
}

func (h *handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	var snapshot metrics.HealthSnapshot
	if h.health != nil {
		snapshot = h.health.Snapshot()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().Unix(),
		"version":   h.version,
		"services": map[string]interface{}{
			"tiktok_client": snapshot,
		},
	})
}

func (h *handler) posts(w http.ResponseWriter, r *http.Request) {
	req, err := parsePostsRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), 0)
		return
	}

	resp, err := h.svc.FetchAndAssemble(r.Context(), req)
	if err != nil {
		var f *service.Failure
		if !errors.As(err, &f) {
			f = &service.Failure{Kind: service.KindInternal, Message: "internal error", Err: err}
		}

		if status, _ := statusFor(f.Kind); status >= http.StatusInternalServerError {
			h.logger.WithError(err).ErrorWithFields("posts request failed", map[string]interface{}{
				"username":   req.Handle,
				"kind":       string(f.Kind),
				"request_id": RequestIDFromContext(r.Context()),
			})
		}

		writeFailure(w, f)
		return
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(resp.RateLimit.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(resp.RateLimit.Remaining))
	w.Header().Set("X-Processing-Time", fmt.Sprintf("%.2fms", resp.Meta.ProcessingTimeMs))
	writeJSON(w, http.StatusOK, resp)
}

// parsePostsRequest reads the query and headers of a posts request.
// Range checks are left to the service.
func parsePostsRequest(r *http.Request) (service.Request, error) {
	q := r.URL.Query()

	page, err := intParam(q, "page", defaultPage)
	if err != nil {
		return service.Request{}, err
	}
	perPage, err := intParam(q, "per_page", defaultPerPage)
	if err != nil {
		return service.Request{}, err
	}
	start, err := epochParam(q, "start_epoch")
	if err != nil {
		return service.Request{}, err
	}
	end, err := epochParam(q, "end_epoch")
	if err != nil {
		return service.Request{}, err
	}

	req := service.Request{
		Handle:         strings.TrimSpace(q.Get("username")),
		Page:           page,
		PerPage:        perPage,
		StartEpoch:     start,
		EndEpoch:       end,
		CookieOverride: strings.TrimSpace(r.Header.Get("X-TikTok-Cookie")),
	}
	if key, ok := APIKeyFromContext(r.Context()); ok {
		req.CallerIdentity = key.Key
	}

	return req, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func epochParam(q url.Values, name string) (*int64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &n, nil
}
