package tiktok

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"ttscraper/pkg/config"
	errs "ttscraper/pkg/errors"
	"ttscraper/pkg/logger"
)

// Identity is the browser fingerprint and exit proxy used for one request
type Identity struct {
	UserAgent string
	Proxy     string

	client *http.Client
}

// Page is a fetched profile page
type Page struct {
	URL        string
	StatusCode int
	Body       string
}

// Client fetches profile pages. It keeps no cookie jar; the session cookie is
// sent per request and cookies set by the server are discarded.
type Client struct {
	direct     *http.Client
	proxied    []*http.Client
	proxies    []string
	rotate     bool
	userAgents []string
	headers    map[string]string
	baseURL    string
	logger     logger.Logger

	uaIndex    atomic.Uint64
	proxyIndex atomic.Uint64
}

// NewClient creates a client from the TikTok section of the configuration
func NewClient(cfg config.TikTokConfig, log logger.Logger) (*Client, error) {
	// Use default logger if none provided
	if log == nil {
		log = logger.GetLogger()
	}

	userAgents := cfg.UserAgents
	if len(userAgents) == 0 {
		userAgents = config.DefaultUserAgents
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}

	c := &Client{
		direct:     &http.Client{Timeout: cfg.Timeout},
		rotate:     cfg.ProxyRotation,
		userAgents: userAgents,
		headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
			"Pragma":          "no-cache",
			"Referer":         BaseURL + "/",
			"Sec-Fetch-Dest":  "document",
			"Sec-Fetch-Mode":  "navigate",
			"Sec-Fetch-Site":  "none",
			"Sec-Fetch-User":  "?1",
		},
		baseURL: baseURL,
		logger:  log,
	}

	// configured headers override the defaults; the map is read-only from here on
	for key, value := range cfg.Headers {
		c.headers[http.CanonicalHeaderKey(key)] = value
	}

	for _, raw := range cfg.Proxies {
		proxyURL, err := config.ParseProxyURL(raw)
		if err != nil {
			return nil, err
		}

		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(proxyURL)

		c.proxied = append(c.proxied, &http.Client{Timeout: cfg.Timeout, Transport: transport})
		c.proxies = append(c.proxies, proxyURL.Redacted())
	}

	return c, nil
}

// ProxyCount returns the number of configured proxies
func (c *Client) ProxyCount() int {
	return len(c.proxied)
}

// NextIdentity picks the next user agent from the pool and the next proxy.
// Without rotation the first proxy is always used.
func (c *Client) NextIdentity() Identity {
	ua := c.userAgents[(c.uaIndex.Add(1)-1)%uint64(len(c.userAgents))]

	if len(c.proxied) == 0 {
		return Identity{UserAgent: ua, client: c.direct}
	}

	idx := 0
	if c.rotate {
		idx = int((c.proxyIndex.Add(1) - 1) % uint64(len(c.proxied)))
	}
	return Identity{UserAgent: ua, Proxy: c.proxies[idx], client: c.proxied[idx]}
}

// FetchProfilePage downloads the profile page of handle using cookie for authentication
func (c *Client) FetchProfilePage(ctx context.Context, handle, cookie string, id Identity) (*Page, error) {
	pageURL := GetProfileURL(c.baseURL, handle)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, "failed to create request", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if id.UserAgent != "" {
		req.Header.Set("User-Agent", id.UserAgent)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.doRequest(req, id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageSize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: "failed to read response body",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	c.logger.DebugWithFields("fetched profile page", map[string]interface{}{
		"handle": handle,
		"bytes":  len(body),
	})

	return &Page{URL: pageURL, StatusCode: resp.StatusCode, Body: string(body)}, nil
}

// doRequest sends req through the identity's client
func (c *Client) doRequest(req *http.Request, id Identity) (*http.Response, error) {
	httpClient := id.client
	if httpClient == nil {
		httpClient = c.direct
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
		"proxy":  id.Proxy,
	})

	resp, err := httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		// a cancelled caller is not a network failure
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}

		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})

		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, errs.Wrap(errs.ErrorTypeNetwork, "request timed out", err)
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, "network error", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// checkResponseStatus checks the HTTP response status and returns appropriate errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", fields)
		return &errs.Error{
			Type:    errs.ErrorTypeAuth,
			Message: "session cookie rejected",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusNotFound:
		c.logger.WarnWithFields("profile not found", fields)
		return &errs.Error{
			Type:    errs.ErrorTypeNotFound,
			Message: "profile not found",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return &errs.Error{
			Type:       errs.ErrorTypeRateLimit,
			Message:    "rate limit exceeded",
			Code:       resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case errs.IsRetryableStatusCode(resp.StatusCode):
		if resp.StatusCode < 500 {
			c.logger.WarnWithFields("transient response status", fields)
			return &errs.Error{
				Type:    errs.ErrorTypeNetwork,
				Message: fmt.Sprintf("transient status code: %d", resp.StatusCode),
				Code:    resp.StatusCode,
			}
		}
		c.logger.ErrorWithFields("server error", fields)
		return &errs.Error{
			Type:    errs.ErrorTypeServerError,
			Message: "server error",
			Code:    resp.StatusCode,
		}
	default:
		c.logger.ErrorWithFields("unexpected response status", fields)
		return &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
