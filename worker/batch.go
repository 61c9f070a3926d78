package worker

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2"

	"github.com/gofhir/fhiravro/pkg/record"
)

// ConvertFunc converts a single JSON resource.
type ConvertFunc func(ctx context.Context, resource []byte) (*record.Record, error)

// WithSchema binds a converter to one schema.
func WithSchema(c Converter, s avro.Schema) ConvertFunc {
	return func(ctx context.Context, resource []byte) (*record.Record, error) {
		return c.ConvertJSON(ctx, resource, s)
	}
}

// BatchConverter converts slices of resources in parallel, keeping results
// in input order.
type BatchConverter struct {
	convert ConvertFunc
	workers int
}

// NewBatchConverter creates a batch converter. If workers <= 0, it defaults
// to runtime.NumCPU().
func NewBatchConverter(fn ConvertFunc, workers int) *BatchConverter {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BatchConverter{
		convert: fn,
		workers: workers,
	}
}

// Workers returns the number of parallel workers.
func (bc *BatchConverter) Workers() int { return bc.workers }

// ConvertBatch converts resources in parallel. Results[i] belongs to
// resources[i]. Resources not reached before ctx is done carry ctx.Err().
func (bc *BatchConverter) ConvertBatch(ctx context.Context, resources [][]byte) *BatchResult {
	if len(resources) == 0 {
		return &BatchResult{Results: make([]*JobResult, 0)}
	}

	var results []*JobResult
	if len(resources) <= 2 || bc.workers == 1 {
		results = bc.convertSequential(ctx, resources)
	} else {
		results = bc.convertParallel(ctx, resources)
	}

	br := &BatchResult{Results: results, TotalJobs: len(resources)}
	for i, r := range results {
		if r == nil {
			results[i] = &JobResult{ID: uuid.NewString(), Index: i, Error: ctx.Err()}
			continue
		}
		br.CompletedJobs++
		br.TotalDuration += r.Duration
		if r.Error != nil {
			br.FailedJobs++
		}
	}
	return br
}

func (bc *BatchConverter) convertSequential(ctx context.Context, resources [][]byte) []*JobResult {
	results := make([]*JobResult, len(resources))
	for i, resource := range resources {
		if ctx.Err() != nil {
			break
		}
		results[i] = bc.run(ctx, i, resource)
	}
	return results
}

func (bc *BatchConverter) convertParallel(ctx context.Context, resources [][]byte) []*JobResult {
	numWorkers := bc.workers
	if numWorkers > len(resources) {
		numWorkers = len(resources)
	}

	jobs := make(chan int, len(resources))
	resultsChan := make(chan *JobResult, len(resources))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					return
				}
				resultsChan <- bc.run(ctx, idx, resources[idx])
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range resources {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]*JobResult, len(resources))
	for r := range resultsChan {
		results[r.Index] = r
	}
	return results
}

func (bc *BatchConverter) run(ctx context.Context, index int, resource []byte) *JobResult {
	start := time.Now()
	rec, err := bc.convert(ctx, resource)
	return &JobResult{
		ID:       uuid.NewString(),
		Index:    index,
		Record:   rec,
		Error:    err,
		Duration: time.Since(start).Nanoseconds(),
	}
}

// ConvertBatchSimple converts resources with one schema on runtime.NumCPU()
// workers.
func ConvertBatchSimple(ctx context.Context, c Converter, s avro.Schema, resources [][]byte) *BatchResult {
	return NewBatchConverter(WithSchema(c, s), runtime.NumCPU()).ConvertBatch(ctx, resources)
}
