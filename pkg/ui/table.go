package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"ttscraper/pkg/models"
)

const descriptionWidth = 48

// PostTable renders posts as aligned columns
type PostTable struct {
	// Now anchors relative posting times. Zero means time.Now.
	Now time.Time
	// Wide prints the post URL instead of the description
	Wide bool
}

// Write renders posts to w
func (t PostTable) Write(w io.Writer, posts []models.Post) error {
	now := t.Now
	if now.IsZero() {
		now = time.Now()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	last := "DESCRIPTION"
	if t.Wide {
		last = "URL"
	}
	fmt.Fprintf(tw, "ID\tPOSTED\tVIEWS\tLIKES\tCOMMENTS\tSHARES\t%s\n", last)

	for _, p := range posts {
		tail := truncate(p.Description, descriptionWidth)
		if t.Wide {
			tail = p.URL
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID,
			humanize.RelTime(time.Unix(p.PostedAt, 0), now, "ago", "from now"),
			humanize.Comma(p.Views),
			humanize.Comma(p.Likes),
			humanize.Comma(p.Comments),
			humanize.Comma(p.Shares),
			tail,
		)
	}

	return tw.Flush()
}

// Summary describes a page of results in one line
func Summary(handle string, page, totalPages, totalPosts int, elapsed time.Duration) string {
	if totalPosts == 0 {
		return fmt.Sprintf("@%s: no posts matched", handle)
	}
	return fmt.Sprintf("@%s: page %d of %d, %s %s in %s",
		handle, page, totalPages,
		humanize.Comma(int64(totalPosts)), plural(totalPosts, "post", "posts"),
		elapsed.Round(time.Millisecond))
}

// EngagementLine summarizes the total reach of posts
func EngagementLine(posts []models.Post) string {
	var views, engagement int64
	for _, p := range posts {
		views += p.Views
		engagement += p.Engagement()
	}
	return fmt.Sprintf("%s views, %s interactions", humanize.Comma(views), humanize.Comma(engagement))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// truncate shortens s to width runes on a single line
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}
