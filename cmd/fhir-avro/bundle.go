package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gofhir/fhiravro/pkg/filter"
	"github.com/gofhir/fhiravro/stream"
)

func (a *app) bundleCmd() *cobra.Command {
	var schemaDir, where string

	cmd := &cobra.Command{
		Use:   "bundle FILE|-",
		Short: "Convert every resource of a FHIR Bundle",
		Long: `Convert every entry of a FHIR Bundle, picking the schema by the
resource type of each entry. The bundle is decoded as a stream, so large
bundles are not loaded into memory at once. Records are printed in entry
order.`,
		Example: `  fhir-avro bundle bundle.json
  fhir-avro bundle --schema-dir ./schemas --where "status = 'final'" bundle.json
  curl -s $FHIR/Patient | fhir-avro bundle -o yaml -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = a.in
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			bc := stream.NewBundleConverter(a.converter(), stream.FromRegistry(a.registry(schemaDir))).
				WithWorkerCount(a.cfg.Workers)
			if where != "" {
				f := filter.New(0)
				if err := f.Compile(where); err != nil {
					return err
				}
				bc = bc.WithFilter(f, where)
			}

			out := newRecordWriter(a.out, a.cfg.Output)
			var converted, skipped, failed, total int
			var writeErr error
			for res := range bc.ConvertStreamParallel(cmd.Context(), r) {
				if res.Index >= 0 {
					total++
				}
				switch {
				case res.Error != nil:
					failed++
					src := fmt.Sprintf("%s#%d", args[0], res.Index)
					if res.Index < 0 {
						src = args[0]
					}
					a.reportFailure(src, nil, res.Error)
				case res.Skipped:
					skipped++
					a.log.Debug("entry %d skipped", res.Index)
				case writeErr == nil:
					writeErr = out.Write(res.Record)
					converted++
				}
			}
			if err := out.Close(); err != nil && writeErr == nil {
				writeErr = err
			}

			a.log.Info("converted %d of %d entries (%d skipped, %d failed)", converted, total, skipped, failed)
			a.logMetrics()

			if writeErr != nil {
				return writeErr
			}
			if failed > 0 {
				return fmt.Errorf("%d bundle entries failed", failed)
			}
			return cmd.Context().Err()
		},
	}

	cmd.Flags().StringVar(&schemaDir, "schema-dir", "", "directory of <ResourceType>.avsc files (default: built-in schemas)")
	cmd.Flags().StringVar(&where, "where", "", "FHIRPath expression; only matching resources are converted")
	return cmd
}
