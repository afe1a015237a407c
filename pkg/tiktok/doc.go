// Package tiktok provides the HTTP client that downloads TikTok profile pages.
//
// This package includes:
//   - A client with browser-like headers and a rotating user agent pool
//   - Optional proxy rotation, one transport per proxy
//   - Status classification into the shared error taxonomy
//   - Helper functions for profile and video URLs
//
// Example usage:
//
//	client, err := tiktok.NewClient(cfg.TikTok, log)
//	if err != nil {
//	    return err
//	}
//
//	page, err := client.FetchProfilePage(ctx, "someone", cookie, client.NextIdentity())
//	if err != nil {
//	    switch errors.TypeOf(err) {
//	    case errors.ErrorTypeAuth:
//	        // cookie expired or rejected
//	    case errors.ErrorTypeRateLimit:
//	        // back off
//	    }
//	}
package tiktok
