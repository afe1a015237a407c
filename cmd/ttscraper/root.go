package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"ttscraper/pkg/ui"
)

var (
	// Version information
	version   = "2.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noBanner   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ttscraper",
	Short: "List the posts of a TikTok profile",
	Long: `ttscraper reads the post list embedded in a TikTok profile page and
returns it as normalized, paginated records.

It runs as a one-shot CLI (fetch) or as an HTTP API (serve). Profile pages
only carry their post list for a logged-in session, so a session cookie is
required; store one with 'ttscraper auth login'.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noBanner {
			return
		}
		switch cmd.Name() {
		case "version", "help", "show":
			return
		}
		ui.NewPrinter(os.Stderr).Banner()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.NewPrinter(os.Stderr).Error("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.ttscraper.yaml or ~/.config/ttscraper/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "do not print the banner")

	rootCmd.SetVersionTemplate(`ttscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
