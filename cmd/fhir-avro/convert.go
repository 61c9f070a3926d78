package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hamba/avro/v2"
	"github.com/spf13/cobra"

	"github.com/gofhir/fhiravro/pkg/converter"
	"github.com/gofhir/fhiravro/pkg/filter"
	"github.com/gofhir/fhiravro/pkg/location"
	"github.com/gofhir/fhiravro/stream"
	"github.com/gofhir/fhiravro/worker"
)

const ndjsonExt = ".ndjson"

func (a *app) convertCmd() *cobra.Command {
	var schemaRef, where string

	cmd := &cobra.Command{
		Use:   "convert --schema NAME|FILE FILE...",
		Short: "Convert FHIR JSON resources with one schema",
		Long: `Convert FHIR JSON resources with one record schema.

Each FILE holds one resource; files ending in .ndjson hold one resource per
line; "-" reads a resource from stdin. Glob patterns are expanded.
Single resources are printed first, in argument order, followed by the
records of each NDJSON file.`,
		Example: `  fhir-avro convert --schema Patient patient.json
  fhir-avro convert --schema ./Observation.avsc -o yaml obs-*.json
  fhir-avro convert --schema Patient --where "active = true" patients.ndjson
  cat patient.json | fhir-avro convert --schema Patient -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConvert(cmd.Context(), schemaRef, where, args)
		},
	}

	cmd.Flags().StringVarP(&schemaRef, "schema", "s", "", "resource type of a known schema, or path to an .avsc file")
	cmd.Flags().StringVar(&where, "where", "", "FHIRPath expression; only matching resources are converted")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

// input is one single-resource argument.
type input struct {
	name string
	data []byte
}

// tally counts conversion outcomes.
type tally struct {
	converted, skipped, failed int
}

func (t tally) total() int { return t.converted + t.skipped + t.failed }

func (a *app) runConvert(ctx context.Context, schemaRef, where string, args []string) error {
	s, err := a.registry("").Resolve(schemaRef)
	if err != nil {
		return fmt.Errorf("schema %s: %w", schemaRef, err)
	}

	var flt *filter.Filter
	if where != "" {
		flt = filter.New(0)
		if err := flt.Compile(where); err != nil {
			return err
		}
	}

	var (
		singles []input
		bulk    []string
		counts  tally
	)
	for _, arg := range args {
		if arg == "-" {
			data, err := io.ReadAll(a.in)
			if err != nil {
				a.log.Error("read stdin: %v", err)
				counts.failed++
				continue
			}
			singles = append(singles, input{name: "stdin", data: data})
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil || len(matches) == 0 {
			a.log.Error("no files match pattern: %s", arg)
			counts.failed++
			continue
		}
		for _, path := range matches {
			if strings.EqualFold(filepath.Ext(path), ndjsonExt) {
				bulk = append(bulk, path)
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				a.log.Error("read %s: %v", path, err)
				counts.failed++
				continue
			}
			singles = append(singles, input{name: path, data: data})
		}
	}

	out := newRecordWriter(a.out, a.cfg.Output)
	conv := a.converter()

	runErr := a.convertSingles(ctx, conv, s, flt, where, singles, out, &counts)
	for _, path := range bulk {
		if runErr != nil {
			break
		}
		runErr = a.convertNDJSON(ctx, conv, s, flt, where, path, out, &counts)
	}

	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}
	a.log.Info("converted %d of %d resources (%d skipped, %d failed)",
		counts.converted, counts.total(), counts.skipped, counts.failed)
	a.logMetrics()

	if runErr != nil {
		return runErr
	}
	if counts.failed > 0 {
		return fmt.Errorf("%d of %d resources failed", counts.failed, counts.total())
	}
	return nil
}

// convertSingles converts single resources on a worker pool and prints them
// in argument order.
func (a *app) convertSingles(ctx context.Context, conv *converter.Converter, s avro.Schema,
	flt *filter.Filter, where string, inputs []input, out recordWriter, counts *tally) error {
	if len(inputs) == 0 {
		return nil
	}

	pool := worker.NewPool(conv, a.cfg.Workers)

	var (
		submitted []input
		collected []*worker.JobResult
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range pool.Results() {
			collected = append(collected, r)
		}
	}()

	for _, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		if flt != nil {
			ok, err := flt.Match(where, in.data)
			if err != nil {
				a.log.Error("%s: %v", in.name, err)
				counts.failed++
				continue
			}
			if !ok {
				a.log.Debug("%s: filtered out", in.name)
				counts.skipped++
				continue
			}
		}
		if _, ok := pool.Submit(worker.Job{ID: in.name, Resource: in.data, Schema: s}); ok {
			submitted = append(submitted, in)
		}
	}

	rest := pool.CloseAndWait()
	<-done
	collected = append(collected, rest.Results...)
	sort.Slice(collected, func(i, j int) bool { return collected[i].Index < collected[j].Index })

	for _, r := range collected {
		if r.Error != nil {
			a.reportFailure(r.ID, submitted[r.Index].data, r.Error)
			counts.failed++
			continue
		}
		if err := out.Write(r.Record); err != nil {
			return err
		}
		counts.converted++
	}
	return ctx.Err()
}

// convertNDJSON converts a bulk file with the batch converter.
func (a *app) convertNDJSON(ctx context.Context, conv *converter.Converter, s avro.Schema,
	flt *filter.Filter, where, path string, out recordWriter, counts *tally) error {
	f, err := os.Open(path)
	if err != nil {
		a.log.Error("open %s: %v", path, err)
		counts.failed++
		return nil
	}
	defer f.Close()

	resources, err := stream.NewNDJSONReader(f).ReadAll()
	if err != nil {
		a.log.Error("%s: %v", path, err)
		counts.failed++
		return nil
	}

	selected := resources
	if flt != nil {
		if selected, err = flt.Select(where, resources); err != nil {
			a.log.Error("%s: %v", path, err)
			counts.failed++
			return nil
		}
		counts.skipped += len(resources) - len(selected)
	}

	result := worker.NewBatchConverter(worker.WithSchema(conv, s), a.cfg.Workers).ConvertBatch(ctx, selected)
	for _, r := range result.Results {
		if r.Error != nil {
			a.reportFailure(fmt.Sprintf("%s#%d", path, r.Index+1), selected[r.Index], r.Error)
			counts.failed++
			continue
		}
		if err := out.Write(r.Record); err != nil {
			return err
		}
		counts.converted++
	}
	return ctx.Err()
}

// reportFailure logs a failed conversion. When the JSON source is known the
// failing value is located in it.
func (a *app) reportFailure(source string, data []byte, err error) {
	ev := a.log.Zerolog().Error().Str("source", source).Err(err)
	var ce *converter.ConversionError
	if errors.As(err, &ce) {
		ev = ev.Str("location", ce.Location).Str("schema", ce.Schema)
		if pos, ok := location.Find(data, ce.Location); ok {
			ev = ev.Int("line", pos.Line).Int("column", pos.Column)
		}
	}
	ev.Msg("conversion failed")
}
