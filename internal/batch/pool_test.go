package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"ttscraper/pkg/logger"
	"ttscraper/pkg/models"
)

// mockFetcher returns one post per handle and records calls
type mockFetcher struct {
	err     error
	calls   atomic.Int32
	active  atomic.Int32
	peak    atomic.Int32
	release chan struct{}

	mu      sync.Mutex
	handles []string
}

func (m *mockFetcher) FetchPosts(ctx context.Context, handle, cookie string, maxPosts int) ([]models.Post, error) {
	m.calls.Add(1)
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.handles = append(m.handles, handle)
	m.mu.Unlock()

	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.err != nil {
		return nil, m.err
	}
	return []models.Post{{ID: handle + "-1", PostedAt: 1}}, nil
}

func collect(pool *WorkerPool) (*[]Result, *sync.WaitGroup) {
	var results []Result
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := range pool.Results() {
			results = append(results, r)
		}
	}()
	return &results, &wg
}

func TestWorkerPoolBasicFunctionality(t *testing.T) {
	fetcher := &mockFetcher{}
	pool := NewWorkerPool(3, fetcher, logger.NewTestLogger())
	pool.Start()

	results, wg := collect(pool)

	numJobs := 10
	for i := 0; i < numJobs; i++ {
		if err := pool.Submit(Job{Handle: fmt.Sprintf("user%d", i), Cookie: "sessionid=x", MaxPosts: 5}); err != nil {
			t.Errorf("Failed to submit job %d: %v", i, err)
		}
	}

	pool.Stop()
	wg.Wait()

	if len(*results) != numJobs {
		t.Fatalf("Expected %d results, got %d", numJobs, len(*results))
	}
	for _, r := range *results {
		if r.Err != nil {
			t.Errorf("unexpected error for %s: %v", r.Job.Handle, r.Err)
		}
		if len(r.Posts) != 1 || r.Posts[0].ID != r.Job.Handle+"-1" {
			t.Errorf("unexpected posts for %s: %+v", r.Job.Handle, r.Posts)
		}
	}
	if got := int(fetcher.calls.Load()); got != numJobs {
		t.Errorf("Expected %d fetches, got %d", numJobs, got)
	}
}

func TestWorkerPoolWithErrors(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("fetch error")}
	pool := NewWorkerPool(2, fetcher, logger.NewTestLogger())
	pool.Start()

	results, wg := collect(pool)

	for i := 0; i < 5; i++ {
		if err := pool.Submit(Job{Handle: fmt.Sprintf("user%d", i)}); err != nil {
			t.Errorf("Failed to submit job %d: %v", i, err)
		}
	}

	pool.Stop()
	wg.Wait()

	if len(*results) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(*results))
	}
	for _, r := range *results {
		if !errors.Is(r.Err, fetcher.err) {
			t.Errorf("Expected wrapped fetch error, got %v", r.Err)
		}
		if r.Posts != nil {
			t.Error("failed jobs carry no posts")
		}
	}
}

func TestWorkerPoolConcurrency(t *testing.T) {
	fetcher := &mockFetcher{release: make(chan struct{})}
	pool := NewWorkerPool(3, fetcher, logger.NewTestLogger())
	pool.Start()

	results, wg := collect(pool)

	go func() {
		for i := 0; i < 6; i++ {
			_ = pool.Submit(Job{Handle: fmt.Sprintf("user%d", i)})
		}
		// unblock every fetch once all workers are busy
		for fetcher.active.Load() < 3 {
		}
		close(fetcher.release)
		pool.Stop()
	}()

	wg.Wait()

	if len(*results) != 6 {
		t.Errorf("Expected 6 results, got %d", len(*results))
	}
	if peak := fetcher.peak.Load(); peak != 3 {
		t.Errorf("Expected 3 concurrent fetches, peak was %d", peak)
	}
}

func TestWorkerPoolDuplicateDetection(t *testing.T) {
	fetcher := &mockFetcher{}
	pool := NewWorkerPool(1, fetcher, logger.NewTestLogger())
	pool.Start()

	results, wg := collect(pool)

	for _, h := range []string{"alice", "@Alice", "bob", "alice/"} {
		if err := pool.Submit(Job{Handle: h}); err != nil {
			t.Errorf("Failed to submit job: %v", err)
		}
	}

	pool.Stop()
	wg.Wait()

	if len(*results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(*results))
	}

	duplicates := 0
	for _, r := range *results {
		if r.Duplicate {
			duplicates++
		}
	}
	if duplicates != 2 {
		t.Errorf("Expected 2 duplicates, got %d", duplicates)
	}
	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("Expected 2 fetches, got %d", got)
	}
}

func TestWorkerPoolCancel(t *testing.T) {
	fetcher := &mockFetcher{release: make(chan struct{})}
	pool := NewWorkerPool(1, fetcher, logger.NewTestLogger())
	pool.Start()

	results, wg := collect(pool)

	if err := pool.Submit(Job{Handle: "slow"}); err != nil {
		t.Fatal(err)
	}
	for fetcher.active.Load() < 1 {
	}

	pool.Cancel()
	if err := pool.Submit(Job{Handle: "late"}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Submit after Cancel = %v, want ErrPoolStopped", err)
	}

	pool.Stop()
	wg.Wait()

	if len(*results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(*results))
	}
	if !errors.Is((*results)[0].Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", (*results)[0].Err)
	}
}

func TestWorkerPoolStopIsIdempotent(t *testing.T) {
	pool := NewWorkerPool(2, &mockFetcher{}, logger.NewTestLogger())
	pool.Start()
	pool.Stop()
	pool.Stop()

	if err := pool.Submit(Job{Handle: "x"}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Submit after Stop = %v, want ErrPoolStopped", err)
	}
	if _, ok := <-pool.Results(); ok {
		t.Error("Results should be closed after Stop")
	}
}
