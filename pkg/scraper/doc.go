// Package scraper fetches a profile's posts end to end.
//
// The Scraper coordinates the TikTok client, the embedded JSON extractor and
// the item normalizer. Each FetchPosts call runs a retry state machine:
//
//   - every attempt waits on the outbound pacer, then takes a slot from the
//     shared admission gate before sending its request
//   - empty extraction, empty normalization, network errors, 429 and 5xx
//     responses are retried with backoff
//   - 401, 403 and 404 responses fail immediately
//   - the slot is released before any backoff sleep
//
// Usage:
//
//	client, err := tiktok.NewClient(cfg.TikTok, log)
//	if err != nil {
//	    return err
//	}
//
//	s := scraper.New(cfg, client, log, scraper.WithMetrics(collector))
//	posts, err := s.FetchPosts(ctx, "someone", "", cfg.Fetch.MaxPosts)
//
// Cookies:
//
// The session cookie is taken from the per-call override, then the configured
// cookie, then the optional CookieSource. Without one FetchPosts fails with a
// cookie_missing error and sends nothing.
package scraper
