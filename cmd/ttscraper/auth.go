package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ttscraper/pkg/auth"
	"ttscraper/pkg/ui"
)

var logoutAll bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored session cookies",
	Long: `Manage stored TikTok session cookies.

Cookies are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables TTSCRAPER_COOKIE or TIKTOK_COOKIE (read only)

Never share your cookies or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store a session cookie securely",
	Long: `Store a TikTok session cookie in the system keychain or encrypted file.

The cookie is read without echo. Paste the full Cookie header copied from a
logged-in browser session. Without a profile name the cookie is stored as
the default profile used by fetch and serve.`,
	Example: `  # Store the default profile
  ttscraper auth login

  # Store a named profile
  ttscraper auth login work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove a stored session cookie",
	Example: `  # Remove the default profile
  ttscraper auth logout

  # Remove every stored profile
  ttscraper auth logout --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Long:  `List stored profiles with their cookie values masked.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored profile")
}

func profileArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return auth.DefaultProfile
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := profileArg(args)
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(os.Stdin)

	auth.WriteCookieGuide(out)

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Fprintf(out, "\nProfile '%s' already exists. Replace its cookie? (y/N): ", name)
		if !confirm(reader) {
			return nil
		}
	}

	var cookie string
	for {
		fmt.Fprint(out, "\nCookie header (hidden): ")
		cookie, err = readPassword(reader)
		if err != nil {
			return fmt.Errorf("failed to read cookie: %w", err)
		}

		if err := auth.ValidateCookie(cookie); err != nil {
			ui.NewPrinter(out).Error("That does not look like a Cookie header", err)
			fmt.Fprint(out, "Try again? (Y/n): ")
			if !confirmDefaultYes(reader) {
				return errors.New("no cookie stored")
			}
			continue
		}
		break
	}

	if !auth.HasSessionCookie(cookie) {
		ui.NewPrinter(out).Warning("The cookie has no sessionid, sessionid_ss or sid_tt entry",
			"profile pages may not include their post list")
	}

	fmt.Fprint(out, "User agent (press Enter for the built-in rotation): ")
	userAgent, _ := reader.ReadString('\n')

	profile := &auth.Profile{
		Name:      name,
		Cookie:    cookie,
		UserAgent: strings.TrimSpace(userAgent),
	}
	if err := manager.Store(profile); err != nil {
		return fmt.Errorf("failed to store cookie: %w", err)
	}

	p := ui.NewPrinter(out)
	fmt.Fprintln(out)
	p.Info("Stored", auth.SanitizeProfile(profile).Cookie)
	p.Success("Profile saved: " + name)
	if auth.IsKeyringAvailable() {
		fmt.Fprintln(out, "   Stored in the system keychain.")
	} else {
		fmt.Fprintln(out, "   Stored in the encrypted cookie file.")
	}

	auth.WriteQuickGuide(out)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	p := ui.NewPrinter(cmd.OutOrStdout())

	if logoutAll {
		profiles, err := manager.List()
		if err != nil {
			return fmt.Errorf("failed to list profiles: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Remove ALL %d profiles? This cannot be undone! (yes/N): ", len(profiles))
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(line) != "yes" {
			return nil
		}
		for _, profile := range profiles {
			if err := manager.Delete(profile.Name); err != nil {
				return fmt.Errorf("failed to remove %s: %w", profile.Name, err)
			}
		}
		p.Success("All profiles removed")
		return nil
	}

	name := profileArg(args)
	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove profile: %w", err)
	}
	p.Success("Profile removed: " + name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profiles, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	out := cmd.OutOrStdout()
	p := ui.NewPrinter(out)
	if len(profiles) == 0 {
		p.Info("No stored profiles", "use 'ttscraper auth login' to add one")
		return nil
	}

	p.Highlight("Stored Profiles")
	fmt.Fprintln(out)

	for i, profile := range profiles {
		sanitized := auth.SanitizeProfile(profile)
		fmt.Fprintf(out, "%d. Profile: %s\n", i+1, sanitized.Name)
		fmt.Fprintf(out, "   Cookie: %s\n", sanitized.Cookie)
		if sanitized.UserAgent != "" {
			fmt.Fprintf(out, "   User Agent: %s\n", sanitized.UserAgent)
		}
		if !sanitized.LastModified.IsZero() {
			fmt.Fprintf(out, "   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Fprintln(out, "   Source: environment")
		}
		fmt.Fprintln(out)
	}
	return nil
}

func confirm(reader *bufio.Reader) bool {
	line, _ := reader.ReadString('\n')
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
}

func confirmDefaultYes(reader *bufio.Reader) bool {
	line, _ := reader.ReadString('\n')
	return strings.ToLower(strings.TrimSpace(line)) != "n"
}

// readPassword reads a secret from stdin without echo when stdin is a terminal
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
