// Package ratelimit provides the per-caller token bucket and the outbound pacer.
//
// Limiter keeps one bucket per identity (normally an API key). Each bucket
// holds at most burst tokens and refills at requestsPerMinute/60 tokens per
// second. Check never blocks: it either takes a token or reports how long
// until one is available.
//
//	limiter := ratelimit.New(100, 20)
//	if d := limiter.Check(apiKey); !d.Allowed {
//	    w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
//	}
//
// Pacer enforces a minimum gap between requests sent to the target site,
// independent of which caller triggered them.
package ratelimit
