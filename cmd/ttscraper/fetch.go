package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ttscraper/internal/batch"
	"ttscraper/pkg/assembler"
	"ttscraper/pkg/auth"
	"ttscraper/pkg/models"
	"ttscraper/pkg/service"
	"ttscraper/pkg/tiktok"
	"ttscraper/pkg/ui"
)

// cliIdentity is the rate limit identity of local CLI requests
const cliIdentity = "cli"

var (
	// Fetch command flags
	fetchPage       int
	fetchPerPage    int
	fetchStart      int64
	fetchEnd        int64
	fetchCookie     string
	fetchProfile    string
	fetchJSON       bool
	fetchWide       bool
	fetchConcurrent int
	fetchMaxPosts   int
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <handle> [handle...]",
	Short: "Fetch the posts of one or more profiles",
	Long: `Fetch the posts of one or more TikTok profiles, newest first.

With a single handle the requested page is printed with its pagination
details. With several handles the profiles are fetched concurrently and the
same page of each is printed.

The session cookie is taken from, in order:
  - the --cookie flag
  - the stored profile named by --profile
  - the configuration file or TTSCRAPER_COOKIE
  - the default stored profile (see 'ttscraper auth login')`,
	Example: `  # First page of a profile
  ttscraper fetch someone

  # Third page, 50 posts per page, as JSON
  ttscraper fetch someone --page 3 --per-page 50 --json

  # Posts from a time window
  ttscraper fetch someone --start 1700000000 --end 1700600000

  # Several profiles with 4 workers
  ttscraper fetch alice bob carol --concurrent 4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().IntVar(&fetchPage, "page", 1, "page to return (1-based)")
	fetchCmd.Flags().IntVar(&fetchPerPage, "per-page", 20, "posts per page (1-100)")
	fetchCmd.Flags().Int64Var(&fetchStart, "start", 0, "only posts at or after this epoch second")
	fetchCmd.Flags().Int64Var(&fetchEnd, "end", 0, "only posts at or before this epoch second")
	fetchCmd.Flags().StringVar(&fetchCookie, "cookie", "", "session cookie header for this run")
	fetchCmd.Flags().StringVarP(&fetchProfile, "profile", "a", "", "use a specific stored cookie profile")
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "print JSON instead of a table")
	fetchCmd.Flags().BoolVar(&fetchWide, "wide", false, "show post URLs instead of descriptions")
	fetchCmd.Flags().IntVar(&fetchConcurrent, "concurrent", 0, "profiles fetched at once (default from config)")
	fetchCmd.Flags().IntVar(&fetchMaxPosts, "max-posts", 0, "cap on posts kept per profile (default from config)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{
		"concurrent": fetchConcurrent,
		"max-posts":  fetchMaxPosts,
	}
	// keep stdout clean for tables and JSON unless asked otherwise
	if logLevel == "" {
		flags["log-level"] = "error"
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	cookie, err := resolveCookieFlag(a.manager)
	if err != nil {
		return err
	}

	filter := assembler.Filter{}
	if cmd.Flags().Changed("start") {
		filter.Start = &fetchStart
	}
	if cmd.Flags().Changed("end") {
		filter.End = &fetchEnd
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) == 1 {
		return fetchOne(ctx, cmd.OutOrStdout(), a, args[0], cookie, filter)
	}
	return fetchMany(ctx, cmd.OutOrStdout(), a, args, cookie, filter)
}

// resolveCookieFlag returns the cookie given by --cookie or --profile, if any
func resolveCookieFlag(manager *auth.Manager) (string, error) {
	if fetchCookie != "" {
		if err := auth.ValidateCookie(fetchCookie); err != nil {
			return "", err
		}
		return fetchCookie, nil
	}
	if fetchProfile == "" {
		return "", nil
	}
	if manager == nil {
		return "", fmt.Errorf("cannot read profile %q: credential store unavailable", fetchProfile)
	}

	profile, err := manager.Retrieve(fetchProfile)
	if err != nil {
		return "", fmt.Errorf("profile %q: %w (see 'ttscraper auth list')", fetchProfile, err)
	}
	return profile.Cookie, nil
}

func fetchOne(ctx context.Context, out io.Writer, a *app, handle, cookie string, filter assembler.Filter) error {
	resp, err := a.service.FetchAndAssemble(ctx, service.Request{
		Handle:         handle,
		Page:           fetchPage,
		PerPage:        fetchPerPage,
		StartEpoch:     filter.Start,
		EndEpoch:       filter.End,
		CookieOverride: cookie,
		CallerIdentity: cliIdentity,
	})
	if err != nil {
		var f *service.Failure
		if errors.As(err, &f) && f.Kind == service.KindCookieMissing {
			auth.WriteQuickGuide(os.Stderr)
		}
		return err
	}

	if fetchJSON {
		return writeJSON(out, resp)
	}

	p := ui.NewPrinter(out)
	if err := (ui.PostTable{Wide: fetchWide}).Write(out, resp.Data); err != nil {
		return err
	}
	fmt.Fprintln(out)

	elapsed := time.Duration(resp.Meta.ProcessingTimeMs * float64(time.Millisecond))
	p.Highlight(ui.Summary(resp.Meta.Username, resp.Meta.Page, resp.Meta.TotalPages, resp.Meta.TotalPosts, elapsed))
	if len(resp.Data) > 0 {
		p.Info("This page", ui.EngagementLine(resp.Data))
	}
	return nil
}

// batchEntry is the JSON shape of one profile in a multi-handle fetch
type batchEntry struct {
	Username   string        `json:"username"`
	TotalPosts int           `json:"total_posts"`
	TotalPages int           `json:"total_pages"`
	Data       []models.Post `json:"data"`
	Error      string        `json:"error,omitempty"`

	elapsed time.Duration
}

func fetchMany(ctx context.Context, out io.Writer, a *app, handles []string, cookie string, filter assembler.Filter) error {
	if err := assembler.Validate(filter, fetchPage, fetchPerPage); err != nil {
		return err
	}

	pool := batch.NewWorkerPool(a.cfg.Fetch.MaxConcurrentRequests, a.scraper, a.log.WithField("component", "batch"))
	pool.Start()
	defer context.AfterFunc(ctx, pool.Cancel)()

	go func() {
		for _, h := range handles {
			job := batch.Job{Handle: h, Cookie: cookie, MaxPosts: a.cfg.Fetch.MaxPosts}
			if err := pool.Submit(job); err != nil {
				break
			}
		}
		pool.Stop()
	}()

	progress := ui.NewPrinter(os.Stderr)
	tracker := ui.NewBatchTracker(len(handles))
	entries := make(map[string]batchEntry, len(handles))

	for r := range pool.Results() {
		if r.Duplicate {
			tracker.Record(0, nil)
			tracker.PrintProgress(progress)
			continue
		}

		entry := batchEntry{
			Username: tiktok.SanitizeHandle(r.Job.Handle),
			Data:     []models.Post{},
			elapsed:  r.Duration,
		}
		err := r.Err
		if err == nil {
			var page assembler.Result
			page, err = assembler.Build(r.Posts, filter, fetchPage, fetchPerPage)
			if err == nil {
				entry.TotalPosts, entry.TotalPages = page.TotalCount, page.TotalPages
				if page.Items != nil {
					entry.Data = page.Items
				}
			}
		}
		if err != nil {
			entry.Error = err.Error()
		}

		entries[r.Job.Handle] = entry
		tracker.Record(len(entry.Data), err)
		tracker.PrintProgress(progress)
	}
	tracker.PrintSummary(os.Stderr)

	ordered := make([]batchEntry, 0, len(entries))
	for _, h := range handles {
		if e, ok := entries[h]; ok {
			ordered = append(ordered, e)
			delete(entries, h)
		}
	}

	if fetchJSON {
		if err := writeJSON(out, ordered); err != nil {
			return err
		}
	} else if err := writeBatchTables(out, ordered); err != nil {
		return err
	}

	if _, failed, _ := tracker.Counts(); failed > 0 {
		return fmt.Errorf("%d of %d profiles failed", failed, len(handles))
	}
	return ctx.Err()
}

func writeBatchTables(out io.Writer, entries []batchEntry) error {
	p := ui.NewPrinter(out)
	for _, e := range entries {
		fmt.Fprintln(out)
		if e.Error != "" {
			p.Error("@"+e.Username, e.Error)
			continue
		}
		p.Highlight(ui.Summary(e.Username, fetchPage, e.TotalPages, e.TotalPosts, e.elapsed))
		if len(e.Data) == 0 {
			continue
		}
		if err := (ui.PostTable{Wide: fetchWide}).Write(out, e.Data); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
