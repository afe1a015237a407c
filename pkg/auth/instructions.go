package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteCookieGuide writes step-by-step instructions for copying a TikTok session cookie
func WriteCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 80)

	lines := []string{
		rule,
		"TIKTOK COOKIE GUIDE",
		rule,
		"",
		"Profile pages only embed their post list for a logged-in browser session.",
		"Copy the Cookie header from your browser and save it as a profile:",
		"",
		"STEP 1: Open https://www.tiktok.com and log in",
		"",
		"STEP 2: Open Developer Tools",
		"   Chrome/Edge/Brave/Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)",
		"   Safari: enable the Develop menu in Settings, then Cmd+Option+I",
		"",
		"STEP 3: Network tab",
		"   Reload the page and select the first request to www.tiktok.com",
		"",
		"STEP 4: Copy the Cookie request header",
		"   Headers > Request Headers > Cookie",
		"   Copy the whole value, for example:",
		"   sessionid=...; sid_tt=...; tt_chain_token=...; msToken=...",
		"",
		"STEP 5: Save it",
		"   ttscraper auth login --profile default",
		"",
		"NOTES:",
		"   The cookie must contain sessionid or sid_tt to count as logged in",
		"   Cookies expire; run auth login again when fetches start failing with 401 or 403",
		"   The cookie grants full access to the account. Never share it.",
		rule,
	}

	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// WriteQuickGuide writes a one-line reminder for experienced users
func WriteQuickGuide(w io.Writer) {
	fmt.Fprintln(w, "Cookie: F12 > Network > reload > www.tiktok.com request > Headers > Cookie (needs sessionid or sid_tt)")
}
