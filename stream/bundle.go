// Package stream converts the entries of large FHIR Bundles and NDJSON bulk
// files without holding the whole input in memory.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gofhir/fhir/r4"
	"github.com/hamba/avro/v2"

	"github.com/gofhir/fhiravro/pkg/filter"
	"github.com/gofhir/fhiravro/pkg/record"
	"github.com/gofhir/fhiravro/pkg/schema"
	"github.com/gofhir/fhiravro/worker"
)

// ErrUnknownResourceType reports a bundle entry whose resourceType is not an
// R4 resource type.
var ErrUnknownResourceType = errors.New("unknown resource type")

// SchemaSource returns the record schema for a resource type.
type SchemaSource func(resourceType string) (avro.Schema, error)

// FromRegistry looks schemas up by resource type in reg.
func FromRegistry(reg *schema.Registry) SchemaSource {
	return reg.Get
}

// EntryResult is the conversion result of one bundle entry.
type EntryResult struct {
	// Index is the position of the entry in the bundle, or -1 for errors
	// that concern the whole bundle.
	Index int

	FullURL      string
	ResourceType string
	ResourceID   string

	// Record is the converted resource.
	Record *record.Record

	// Skipped is set for entries without a resource and for resources the
	// filter rejected.
	Skipped bool

	Error error
}

// BundleConverter converts bundles in a streaming fashion.
type BundleConverter struct {
	converter worker.Converter
	schemas   SchemaSource

	filter     *filter.Filter
	expression string

	bufferSize  int
	workerCount int
}

// NewBundleConverter creates a streaming bundle converter.
func NewBundleConverter(conv worker.Converter, schemas SchemaSource) *BundleConverter {
	return &BundleConverter{
		converter:   conv,
		schemas:     schemas,
		bufferSize:  100,
		workerCount: 4,
	}
}

// WithBufferSize sets the channel buffer size.
func (bc *BundleConverter) WithBufferSize(size int) *BundleConverter {
	if size > 0 {
		bc.bufferSize = size
	}
	return bc
}

// WithWorkerCount sets the number of parallel workers.
func (bc *BundleConverter) WithWorkerCount(count int) *BundleConverter {
	if count > 0 {
		bc.workerCount = count
	}
	return bc
}

// WithFilter converts only the resources for which the FHIRPath expression
// is truthy. The others are reported as skipped.
func (bc *BundleConverter) WithFilter(f *filter.Filter, expression string) *BundleConverter {
	bc.filter = f
	bc.expression = expression
	return bc
}

// ConvertStream converts a bundle read from r, emitting results in entry
// order as entries are decoded.
func (bc *BundleConverter) ConvertStream(ctx context.Context, r io.Reader) <-chan *EntryResult {
	results := make(chan *EntryResult, bc.bufferSize)

	go func() {
		defer close(results)

		err := walkEntries(ctx, r, func(index int, e *rawEntry, err error) bool {
			if err != nil {
				return send(ctx, results, &EntryResult{Index: index, Error: err})
			}
			return send(ctx, results, bc.processEntry(ctx, index, e))
		})
		if err != nil {
			send(ctx, results, &EntryResult{Index: -1, Error: err})
		}
	}()

	return results
}

// ConvertStreamParallel converts entries on several workers while keeping
// entry order in the output.
func (bc *BundleConverter) ConvertStreamParallel(ctx context.Context, r io.Reader) <-chan *EntryResult {
	results := make(chan *EntryResult, bc.bufferSize)

	go func() {
		defer close(results)

		type workItem struct {
			index int
			entry *rawEntry
		}

		work := make(chan workItem, bc.bufferSize)
		done := make(chan *EntryResult, bc.bufferSize)

		var wg sync.WaitGroup
		for i := 0; i < bc.workerCount; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for w := range work {
					done <- bc.processEntry(ctx, w.index, w.entry)
				}
			}()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(work)
			err := walkEntries(ctx, r, func(index int, e *rawEntry, err error) bool {
				if err != nil {
					done <- &EntryResult{Index: index, Error: err}
					return true
				}
				select {
				case <-ctx.Done():
					return false
				case work <- workItem{index: index, entry: e}:
					return true
				}
			})
			if err != nil {
				done <- &EntryResult{Index: -1, Error: err}
			}
		}()

		go func() {
			wg.Wait()
			close(done)
		}()

		pending := make(map[int]*EntryResult)
		next := 0
		for res := range done {
			if res.Index < 0 {
				send(ctx, results, res)
				continue
			}
			pending[res.Index] = res
			for {
				ready, ok := pending[next]
				if !ok {
					break
				}
				send(ctx, results, ready)
				delete(pending, next)
				next++
			}
		}

		// Entries left behind a gap, after cancellation.
		rest := make([]int, 0, len(pending))
		for i := range pending {
			rest = append(rest, i)
		}
		sort.Ints(rest)
		for _, i := range rest {
			send(ctx, results, pending[i])
		}
	}()

	return results
}

func (bc *BundleConverter) processEntry(ctx context.Context, index int, e *rawEntry) *EntryResult {
	result := &EntryResult{Index: index, FullURL: e.FullURL}

	if len(e.Resource) == 0 || string(e.Resource) == "null" {
		result.Skipped = true
		return result
	}

	var head struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(e.Resource, &head); err != nil {
		result.Error = fmt.Errorf("entry %d: decode resource: %w", index, err)
		return result
	}
	result.ResourceType = head.ResourceType
	result.ResourceID = head.ID
	if !r4.IsKnownResourceType(head.ResourceType) {
		result.Error = fmt.Errorf("entry %d: %q: %w", index, head.ResourceType, ErrUnknownResourceType)
		return result
	}

	if bc.filter != nil && bc.expression != "" {
		ok, err := bc.filter.Match(bc.expression, []byte(e.Resource))
		if err != nil {
			result.Error = fmt.Errorf("entry %d: %w", index, err)
			return result
		}
		if !ok {
			result.Skipped = true
			return result
		}
	}

	s, err := bc.schemas(head.ResourceType)
	if err != nil {
		result.Error = fmt.Errorf("entry %d: schema for %q: %w", index, head.ResourceType, err)
		return result
	}

	rec, err := bc.converter.ConvertJSON(ctx, e.Resource, s)
	if err != nil {
		result.Error = fmt.Errorf("entry %d: %w", index, err)
		return result
	}
	result.Record = rec
	return result
}

type rawEntry struct {
	FullURL  string          `json:"fullUrl"`
	Resource json.RawMessage `json:"resource"`
}

// walkEntries decodes the entry array of a bundle and calls fn for every
// entry in order. It stops early when fn returns false. Errors that end the
// walk are returned; an entry of the wrong shape is passed to fn.
func walkEntries(ctx context.Context, r io.Reader, fn func(index int, e *rawEntry, err error) bool) error {
	decoder := json.NewDecoder(r)

	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object start, got %v", token)
	}

	for decoder.More() {
		if err := ctx.Err(); err != nil {
			return err
		}

		token, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("read field: %w", err)
		}
		fieldName, ok := token.(string)
		if !ok {
			continue
		}

		if fieldName == "entry" {
			return walkEntryArray(ctx, decoder, fn)
		}

		var skip json.RawMessage
		if err := decoder.Decode(&skip); err != nil {
			return fmt.Errorf("skip field %s: %w", fieldName, err)
		}
	}

	// No entry field: an empty bundle.
	return nil
}

func walkEntryArray(ctx context.Context, decoder *json.Decoder, fn func(int, *rawEntry, error) bool) error {
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("read entry array: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected array start, got %v", token)
	}

	for index := 0; decoder.More(); index++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return fmt.Errorf("decode entry %d: %w", index, err)
		}

		var entry rawEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			if !fn(index, nil, fmt.Errorf("decode entry %d: %w", index, err)) {
				return nil
			}
			continue
		}
		if !fn(index, &entry, nil) {
			return nil
		}
	}
	return nil
}

func send(ctx context.Context, ch chan<- *EntryResult, r *EntryResult) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- r:
		return true
	}
}

// BundleStreamResult aggregates results from a streaming conversion.
type BundleStreamResult struct {
	TotalEntries int
	Converted    int
	Skipped      int
	Failed       int

	// ProcessingErrors holds entry failures and bundle-level errors.
	ProcessingErrors []error

	// ByResourceType counts converted entries per resource type.
	ByResourceType map[string]int

	// Records holds the converted records in entry order.
	Records []*record.Record
}

// Aggregate collects all results from a streaming conversion.
func Aggregate(results <-chan *EntryResult) *BundleStreamResult {
	agg := &BundleStreamResult{
		ByResourceType: make(map[string]int),
	}

	for result := range results {
		if result.Index < 0 {
			agg.ProcessingErrors = append(agg.ProcessingErrors, result.Error)
			continue
		}

		agg.TotalEntries++
		switch {
		case result.Error != nil:
			agg.Failed++
			agg.ProcessingErrors = append(agg.ProcessingErrors, result.Error)
		case result.Skipped:
			agg.Skipped++
		default:
			agg.Converted++
			agg.ByResourceType[result.ResourceType]++
			agg.Records = append(agg.Records, result.Record)
		}
	}

	return agg
}

// HasErrors returns true if any entry or the bundle itself failed.
func (r *BundleStreamResult) HasErrors() bool {
	return r.Failed > 0 || len(r.ProcessingErrors) > 0
}

// Summary returns a human-readable summary of the conversion.
func (r *BundleStreamResult) Summary() string {
	return fmt.Sprintf(
		"Converted %d of %d entries: %d skipped, %d failed",
		r.Converted,
		r.TotalEntries,
		r.Skipped,
		r.Failed,
	)
}
