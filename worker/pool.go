package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2"

	"github.com/gofhir/fhiravro/pkg/record"
)

// Converter is the conversion the pool runs. *converter.Converter
// implements it.
type Converter interface {
	ConvertJSON(ctx context.Context, data []byte, s avro.Schema) (*record.Record, error)
}

// Pool manages worker goroutines converting submitted jobs.
//
// Submit must not be called concurrently with Close or CloseAndWait.
type Pool struct {
	workers    int
	jobsChan   chan indexedJob
	resultChan chan *JobResult
	converter  Converter
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closed     atomic.Bool

	seq           atomic.Uint64
	jobsSubmitted atomic.Uint64
	jobsCompleted atomic.Uint64
	jobsFailed    atomic.Uint64
	totalDuration atomic.Uint64
}

type indexedJob struct {
	Job
	index int
}

// NewPool creates a pool with the given number of workers.
// If workers <= 0, it defaults to runtime.NumCPU().
func NewPool(conv Converter, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		workers:    workers,
		jobsChan:   make(chan indexedJob, workers*2),
		resultChan: make(chan *JobResult, workers*2),
		converter:  conv,
		ctx:        ctx,
		cancel:     cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

// Submit queues a job, blocking while the queue is full. It returns the job
// ID, or false when the pool is closed.
func (p *Pool) Submit(job Job) (string, bool) {
	if p.closed.Load() {
		return "", false
	}
	ij := p.prepare(job)

	select {
	case <-p.ctx.Done():
		return "", false
	case p.jobsChan <- ij:
		p.jobsSubmitted.Add(1)
		return ij.ID, true
	}
}

// SubmitAsync queues a job without blocking. It returns false when the
// queue is full or the pool is closed.
func (p *Pool) SubmitAsync(job Job) (string, bool) {
	if p.closed.Load() {
		return "", false
	}
	ij := p.prepare(job)

	select {
	case <-p.ctx.Done():
		return "", false
	case p.jobsChan <- ij:
		p.jobsSubmitted.Add(1)
		return ij.ID, true
	default:
		return "", false
	}
}

func (p *Pool) prepare(job Job) indexedJob {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return indexedJob{Job: job, index: int(p.seq.Add(1) - 1)} //nolint:gosec // bounded by submissions
}

// Results returns the channel of job results.
func (p *Pool) Results() <-chan *JobResult {
	return p.resultChan
}

// Close stops the workers and discards pending jobs and results.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}

	p.cancel()
	close(p.jobsChan)

	done := make(chan struct{})
	go func() {
		for range p.resultChan {
		}
		close(done)
	}()

	p.wg.Wait()
	close(p.resultChan)
	<-done
}

// CloseAndWait stops accepting jobs, converts everything already queued and
// returns the results not yet read from Results.
func (p *Pool) CloseAndWait() *BatchResult {
	if p.closed.Swap(true) {
		return &BatchResult{}
	}

	close(p.jobsChan)

	go func() {
		p.wg.Wait()
		close(p.resultChan)
	}()

	results := make([]*JobResult, 0)
	for result := range p.resultChan {
		results = append(results, result)
	}
	p.cancel()

	return &BatchResult{
		Results:       results,
		TotalJobs:     int(p.jobsSubmitted.Load()),
		CompletedJobs: int(p.jobsCompleted.Load()),
		FailedJobs:    int(p.jobsFailed.Load()),
		TotalDuration: int64(p.totalDuration.Load()), //nolint:gosec // nanoseconds within int64 range
	}
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:       p.workers,
		JobsSubmitted: p.jobsSubmitted.Load(),
		JobsCompleted: p.jobsCompleted.Load(),
		JobsFailed:    p.jobsFailed.Load(),
		AvgDuration:   p.averageDuration(),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Workers       int
	JobsSubmitted uint64
	JobsCompleted uint64
	JobsFailed    uint64
	AvgDuration   time.Duration
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobsChan {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		result := p.processJob(job)
		p.jobsCompleted.Add(1)
		if result.Error != nil {
			p.jobsFailed.Add(1)
		}
		p.totalDuration.Add(uint64(result.Duration)) //nolint:gosec // durations are non-negative

		select {
		case <-p.ctx.Done():
			return
		case p.resultChan <- result:
		}
	}
}

func (p *Pool) processJob(job indexedJob) *JobResult {
	start := time.Now()
	result := &JobResult{ID: job.ID, Index: job.index}

	switch {
	case p.converter == nil:
		result.Error = ErrNoConverter
	case job.Schema == nil:
		result.Error = ErrNoSchema
	default:
		result.Record, result.Error = p.converter.ConvertJSON(p.ctx, job.Resource, job.Schema)
	}

	result.Duration = time.Since(start).Nanoseconds()
	return result
}

func (p *Pool) averageDuration() time.Duration {
	completed := p.jobsCompleted.Load()
	if completed == 0 {
		return 0
	}
	return time.Duration(p.totalDuration.Load() / completed) //nolint:gosec // nanoseconds within int64 range
}

var (
	// ErrNoConverter is returned when the pool has no converter configured.
	ErrNoConverter = poolError("no converter configured")

	// ErrNoSchema is returned for a job without a schema.
	ErrNoSchema = poolError("job has no schema")
)

type poolError string

func (e poolError) Error() string {
	return string(e)
}
