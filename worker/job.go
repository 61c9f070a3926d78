package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/hamba/avro/v2"

	"github.com/gofhir/fhiravro/pkg/record"
)

// Job is one resource to convert.
type Job struct {
	// ID identifies the job. Submit assigns a random UUID when empty.
	ID string

	// Resource is the FHIR resource as JSON bytes.
	Resource []byte

	// Schema is the record schema to convert with.
	Schema avro.Schema
}

// JobResult is the outcome of one job.
type JobResult struct {
	// ID matches the Job.ID that produced this result.
	ID string

	// Index is the position of the resource in its batch. For pool jobs it
	// increases with submission order.
	Index int

	// Record is the converted record, nil when Error is set.
	Record *record.Record

	Error error

	// Duration is the conversion time in nanoseconds.
	Duration int64
}

// BatchResult aggregates results from multiple jobs.
type BatchResult struct {
	// Results holds one entry per job. Batch conversions keep input order.
	Results []*JobResult

	TotalJobs     int
	CompletedJobs int
	FailedJobs    int

	// TotalDuration is the summed conversion time in nanoseconds.
	TotalDuration int64
}

// HasErrors reports whether any job failed.
func (br *BatchResult) HasErrors() bool {
	for _, r := range br.Results {
		if r != nil && r.Error != nil {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of failed jobs.
func (br *BatchResult) ErrorCount() int {
	count := 0
	for _, r := range br.Results {
		if r != nil && r.Error != nil {
			count++
		}
	}
	return count
}

// Records returns the converted records in result order, skipping failures.
func (br *BatchResult) Records() []*record.Record {
	out := make([]*record.Record, 0, len(br.Results))
	for _, r := range br.Results {
		if r != nil && r.Error == nil && r.Record != nil {
			out = append(out, r.Record)
		}
	}
	return out
}

// Err joins the errors of all failed jobs, labelled with their index.
func (br *BatchResult) Err() error {
	var errs []error
	for _, r := range br.Results {
		if r != nil && r.Error != nil {
			errs = append(errs, fmt.Errorf("resource %d: %w", r.Index, r.Error))
		}
	}
	return errors.Join(errs...)
}

// AverageDuration returns the mean conversion time of completed jobs.
func (br *BatchResult) AverageDuration() time.Duration {
	if br.CompletedJobs == 0 {
		return 0
	}
	return time.Duration(br.TotalDuration / int64(br.CompletedJobs))
}
