// Package main implements the fhir-avro CLI tool.
//
// It converts FHIR JSON resources, NDJSON bulk files and Bundles into records
// shaped by Avro schemas, and prints them as JSON lines or YAML documents.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gofhir/fhiravro"
	"github.com/gofhir/fhiravro/internal/config"
	"github.com/gofhir/fhiravro/pkg/converter"
	"github.com/gofhir/fhiravro/pkg/logger"
	"github.com/gofhir/fhiravro/pkg/schema"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// app holds the state shared by all commands of one invocation.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	metrics *fhiravro.Metrics
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{
		in:      in,
		out:     out,
		errOut:  errOut,
		v:       config.New(),
		metrics: fhiravro.NewMetrics(),
	}

	root := &cobra.Command{
		Use:   "fhir-avro",
		Short: "Convert FHIR resources into records shaped by Avro schemas",
		Long: `fhir-avro converts FHIR R4 JSON resources into generic records driven by
an Avro record schema. Built-in schemas cover Patient, Observation and
Condition; any .avsc file can be used instead.

Settings come from flags, FHIRAVRO_* environment variables and an optional
config file, in that order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error, none")
	pf.String("log-format", config.LogConsole, "log format: console, json")
	pf.Int("workers", 0, "parallel workers (default: number of CPUs)")
	pf.StringP("output", "o", config.OutputJSON, "output format: json, yaml")
	_ = a.v.BindPFlag(config.KeyLogLevel, pf.Lookup("log-level"))
	_ = a.v.BindPFlag(config.KeyLogFormat, pf.Lookup("log-format"))
	_ = a.v.BindPFlag(config.KeyWorkers, pf.Lookup("workers"))
	_ = a.v.BindPFlag(config.KeyOutput, pf.Lookup("output"))

	root.AddCommand(
		a.convertCmd(),
		a.bundleCmd(),
		a.schemaCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.Logger(a.errOut)
	return nil
}

// registry serves schemas from dir, or from the configured schema directory,
// or from the built-in schemas.
func (a *app) registry(dir string) *schema.Registry {
	if dir == "" {
		dir = a.cfg.SchemaDir
	}
	opts := []schema.RegistryOption{schema.WithCapacity(a.cfg.CacheSize)}
	if dir != "" {
		opts = append(opts, schema.WithDir(dir))
	}
	return schema.NewRegistry(opts...)
}

func (a *app) converter() *converter.Converter {
	return converter.New(
		converter.WithLogger(a.log),
		converter.WithMetrics(a.metrics),
	)
}

func (a *app) logMetrics() {
	s := a.metrics.Snapshot()
	a.log.Zerolog().Debug().
		Uint64("conversions", s.ConversionsTotal).
		Uint64("failed", s.ConversionsFailed).
		Uint64("records", s.RecordsBuilt).
		Uint64("rejected_branches", s.BranchesRejected).
		Uint64("tracker_mismatches", s.TrackerMismatches).
		Uint64("avg_ns", s.AvgTimeNs).
		Msg("conversion metrics")
}
