package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttscraper/pkg/models"
)

func TestPostTable(t *testing.T) {
	now := time.Unix(1700007200, 0)
	posts := []models.Post{
		{ID: "7301", PostedAt: 1700000000, Views: 1234567, Likes: 8900, Comments: 12, Shares: 3, Description: "first\nline", URL: "https://www.tiktok.com/@a/video/7301"},
		{ID: "7300", PostedAt: 1699920800, Description: strings.Repeat("x", 80)},
	}

	var buf bytes.Buffer
	require.NoError(t, PostTable{Now: now}.Write(&buf, posts))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "2 hours ago")
	assert.Contains(t, lines[1], "1,234,567")
	assert.Contains(t, lines[1], "8,900")
	assert.Contains(t, lines[1], "first line")
	assert.Contains(t, lines[2], "1 day ago")
	assert.Contains(t, lines[2], strings.Repeat("x", descriptionWidth-3)+"...")

	buf.Reset()
	require.NoError(t, PostTable{Now: now, Wide: true}.Write(&buf, posts[:1]))
	assert.Contains(t, buf.String(), "URL")
	assert.Contains(t, buf.String(), "https://www.tiktok.com/@a/video/7301")
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "@a: no posts matched", Summary("a", 1, 0, 0, time.Second))
	assert.Equal(t, "@a: page 2 of 3, 1,025 posts in 1.5s", Summary("a", 2, 3, 1025, 1500*time.Millisecond))
	assert.Equal(t, "@a: page 1 of 1, 1 post in 10ms", Summary("a", 1, 1, 1, 10*time.Millisecond))
}

func TestEngagementLine(t *testing.T) {
	posts := []models.Post{
		{Views: 1000, Likes: 10, Comments: 5, Shares: 1},
		{Views: 500, Likes: 4},
	}
	assert.Equal(t, "1,500 views, 20 interactions", EngagementLine(posts))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("  a\tb\n c ", 10))
	assert.Equal(t, "héllo w...", truncate("héllo wörld again", 10))
}

func TestBatchTracker(t *testing.T) {
	b := NewBatchTracker(4)
	start := time.Unix(0, 0)
	b.startTime = start
	b.now = func() time.Time { return start.Add(2 * time.Second) }

	b.Record(10, nil)
	b.Record(0, errors.New("boom"))

	done, failed, posts := b.Counts()
	assert.Equal(t, 2, done)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 10, posts)
	assert.Equal(t, "[##########..........] 2/4", b.Bar())

	var buf bytes.Buffer
	b.PrintProgress(NewPrinter(&buf))
	assert.Contains(t, buf.String(), "[FETCHING]")
	assert.NotContains(t, buf.String(), "\033[", "non-terminal output is not colored")

	buf.Reset()
	b.PrintSummary(&buf)
	assert.Contains(t, buf.String(), "1 of 4 handles fetched, 10 posts, 1 failed, took 2s")
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Error("fetch failed", errors.New("503"))
	p.Info("handle", "someone")
	p.Warning("slow")

	assert.Equal(t, "fetch failed: 503\nhandle: someone\nslow\n", buf.String())

	p.color = true
	buf.Reset()
	p.Success("ok")
	assert.Equal(t, Green("ok")+"\n", buf.String())
}
