package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	ProgressBar   = "#"
	ProgressEmpty = "."
	barWidth      = 20
)

// BatchTracker keeps track of a multi-handle fetch
type BatchTracker struct {
	mu        sync.Mutex
	total     int
	done      int
	failed    int
	posts     int
	startTime time.Time
	now       func() time.Time
}

// NewBatchTracker creates a tracker for total handles
func NewBatchTracker(total int) *BatchTracker {
	return &BatchTracker{total: total, startTime: time.Now(), now: time.Now}
}

// Record marks one handle as finished with the given number of posts
func (b *BatchTracker) Record(posts int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.done++
	if err != nil {
		b.failed++
		return
	}
	b.posts += posts
}

// Bar returns a progress bar for finished handles
func (b *BatchTracker) Bar() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	filled := 0
	if b.total > 0 {
		filled = b.done * barWidth / b.total
	}
	if filled > barWidth {
		filled = barWidth
	}

	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, b.done, b.total)
}

// Elapsed returns the time since tracking started
func (b *BatchTracker) Elapsed() time.Duration {
	return b.now().Sub(b.startTime)
}

// Counts returns finished, failed and collected post counts
func (b *BatchTracker) Counts() (done, failed, posts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done, b.failed, b.posts
}

// PrintProgress rewrites the current progress line
func (b *BatchTracker) PrintProgress(p *Printer) {
	_, failed, posts := b.Counts()
	fmt.Fprintf(p.Writer(), "\r%s %s | posts: %s | failed: %d",
		p.paint(Green)("[FETCHING]"), b.Bar(), humanize.Comma(int64(posts)), failed)
}

// PrintSummary prints the final line of a batch
func (b *BatchTracker) PrintSummary(w io.Writer) {
	done, failed, posts := b.Counts()
	fmt.Fprintf(w, "\n%d of %d handles fetched, %s posts, %d failed, took %s\n",
		done-failed, b.total, humanize.Comma(int64(posts)), failed, b.Elapsed().Round(time.Millisecond))
}
