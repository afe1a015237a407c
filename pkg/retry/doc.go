// Package retry provides backoff strategies and the retry state machine used
// for profile page fetches.
//
// A Machine moves through explicit states:
//
//	Attempting(n) -> Succeeded
//	Attempting(n) -> Backoff(n) -> Attempting(n+1)   while n < MaxAttempts
//	Attempting(n) -> Failed                          on exhaustion or a non-retryable error
//
// Basic usage:
//
//	posts, err := retry.DoWithResult(ctx, func(ctx context.Context, attempt int) ([]models.Post, error) {
//		return fetchOnce(ctx, attempt)
//	}, &retry.Config{
//		MaxAttempts: cfg.Fetch.MaxRetries,
//		Backoff:     retry.NewBackoff(cfg.Fetch),
//		Logger:      log,
//	})
//
// Backoff sleeps go through Config.Sleep, which defaults to Wait and can be
// replaced in tests so no real time passes.
//
// Error Type Handling:
//   - Network, rate limit and server errors are retried
//   - Empty extraction and empty normalization are retried
//   - Auth and not found errors fail immediately
//   - Context cancellation stops the machine and returns the context error
package retry
