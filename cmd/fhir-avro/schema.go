package main

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/gofhir/fhiravro"
	"github.com/gofhir/fhiravro/pkg/schema"
)

func (a *app) schemaCmd() *cobra.Command {
	var (
		schemaDir string
		list      bool
	)

	cmd := &cobra.Command{
		Use:   "schema [NAME|FILE]",
		Short: "List or describe record schemas",
		Example: `  fhir-avro schema --list
  fhir-avro schema Patient
  fhir-avro schema ./Observation.avsc`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.registry(schemaDir)

			if list || len(args) == 0 {
				names, err := reg.Names()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(a.out, n)
				}
				return nil
			}

			s, err := reg.Resolve(args[0])
			if err != nil {
				if errors.Is(err, schema.ErrNotFound) {
					return fmt.Errorf("no schema for %q (see schema --list)", args[0])
				}
				return err
			}
			return schema.Describe(a.out, s)
		},
	}

	cmd.Flags().StringVar(&schemaDir, "schema-dir", "", "directory of <ResourceType>.avsc files (default: built-in schemas)")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list available schemas")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			info := fhiravro.Build()
			if asJSON {
				data, err := json.Marshal(info)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.out, string(data))
				return err
			}
			_, err := fmt.Fprintf(a.out, "fhir-avro %s (FHIR %s, %s)\n", info.Version, info.FHIR, info.GoVersion)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
