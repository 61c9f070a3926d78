// Package fhiravro converts FHIR resources into generic records shaped by an
// Avro record schema.
//
// The schema drives the conversion: every field of the record schema is
// looked up in the resource by name, and the value found is read according
// to the field's schema. Records, arrays, unions and primitives are
// supported; unions take the first branch that accepts the value.
//
// # Quick Start
//
//	import (
//	    "github.com/gofhir/fhiravro/pkg/converter"
//	    "github.com/gofhir/fhiravro/pkg/schema"
//	)
//
//	s, err := schema.NewRegistry().Get("Patient")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rec, err := converter.New().ConvertJSON(ctx, patientJSON, s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(rec.Get("birthDate")) // days since the epoch
//
// # Packages
//
//   - pkg/element: FHIR JSON and typed R4 models as element trees
//   - pkg/schema: schema parsing, embedded schemas and the schema registry
//   - pkg/converter: the schema-driven reader
//   - pkg/primitive: date and dateTime formatters
//   - pkg/record: the generic record and its JSON and YAML rendering
//   - pkg/filter: FHIRPath selection of resources
//   - worker, stream: batch, NDJSON and Bundle conversion
//
// This package holds the conversion metrics and version information shared
// by the others.
package fhiravro
