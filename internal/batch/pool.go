package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ttscraper/pkg/logger"
	"ttscraper/pkg/models"
	"ttscraper/pkg/tiktok"
)

// ErrPoolStopped is returned by Submit after Stop or Cancel
var ErrPoolStopped = errors.New("worker pool is shutting down")

// Job is one profile to fetch
type Job struct {
	Handle   string
	Cookie   string
	MaxPosts int
}

// Result is the outcome of a Job
type Result struct {
	Job      Job
	Posts    []models.Post
	Err      error
	Duration time.Duration
	// Duplicate is set when the handle was already fetched by this pool
	Duplicate bool
}

// PostFetcher is satisfied by *scraper.Scraper
type PostFetcher interface {
	FetchPosts(ctx context.Context, handle, cookieOverride string, maxPosts int) ([]models.Post, error)
}

// WorkerPool fetches several profiles concurrently.
// Results must be drained while jobs are submitted.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     PostFetcher
	logger      logger.Logger

	mu   sync.Mutex
	seen map[string]bool

	// submitMu keeps Submit from sending on a closed queue
	submitMu sync.RWMutex
	stopped  bool
}

// NewWorkerPool creates a pool of numWorkers workers around fetcher
func NewWorkerPool(numWorkers int, fetcher PostFetcher, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		logger:      log,
		seen:        make(map[string]bool),
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish, then closes Results
func (wp *WorkerPool) Stop() {
	wp.submitMu.Lock()
	if wp.stopped {
		wp.submitMu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.submitMu.Unlock()

	wp.logger.Debug("Stopping worker pool")

	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Cancel aborts in-flight fetches. Jobs still queued finish with the
// cancellation error. Stop must still be called to close Results.
func (wp *WorkerPool) Cancel() {
	wp.cancel()
}

// Submit queues a job. It blocks while the queue is full.
func (wp *WorkerPool) Submit(job Job) error {
	wp.submitMu.RLock()
	defer wp.submitMu.RUnlock()

	if wp.stopped || wp.ctx.Err() != nil {
		return ErrPoolStopped
	}

	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"handle": job.Handle,
		})
		return nil
	case <-wp.ctx.Done():
		return ErrPoolStopped
	}
}

// Results returns the result channel. It is closed by Stop.
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

// QueueSize returns the number of jobs waiting for a worker
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		// results are always delivered so every submitted job is accounted for
		wp.resultQueue <- wp.processJob(job, id)
	}

	wp.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}

// claim marks handle as fetched and reports whether it was new
func (wp *WorkerPool) claim(handle string) bool {
	key := strings.ToLower(tiktok.SanitizeHandle(handle))

	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.seen[key] {
		return false
	}
	wp.seen[key] = true
	return true
}

func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	if !wp.claim(job.Handle) {
		wp.logger.DebugWithFields("Handle already fetched", map[string]interface{}{
			"worker_id": workerID,
			"handle":    job.Handle,
		})
		result.Duplicate = true
		return result
	}

	if err := wp.ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	posts, err := wp.fetcher.FetchPosts(wp.ctx, job.Handle, job.Cookie, job.MaxPosts)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = fmt.Errorf("fetch @%s: %w", tiktok.SanitizeHandle(job.Handle), err)

		wp.logger.ErrorWithFields("Worker failed to fetch profile", map[string]interface{}{
			"worker_id": workerID,
			"handle":    job.Handle,
			"error":     err.Error(),
			"duration":  result.Duration,
		})
		return result
	}

	result.Posts = posts

	wp.logger.DebugWithFields("Worker completed job", map[string]interface{}{
		"worker_id": workerID,
		"handle":    job.Handle,
		"posts":     len(posts),
		"duration":  result.Duration,
	})

	return result
}
