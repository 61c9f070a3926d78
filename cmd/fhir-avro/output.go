package main

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/gofhir/fhiravro/internal/config"
	"github.com/gofhir/fhiravro/pkg/record"
	"github.com/gofhir/fhiravro/stream"
)

// recordWriter prints converted records.
type recordWriter interface {
	Write(rec *record.Record) error
	Close() error
}

func newRecordWriter(w io.Writer, format string) recordWriter {
	if format == config.OutputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return &yamlWriter{enc: enc}
	}
	return &jsonWriter{w: stream.NewNDJSONWriter(w)}
}

// jsonWriter prints one JSON record per line.
type jsonWriter struct {
	w *stream.NDJSONWriter
}

func (j *jsonWriter) Write(rec *record.Record) error { return j.w.Write(rec) }
func (j *jsonWriter) Close() error                  { return j.w.Flush() }

// yamlWriter prints one YAML document per record.
type yamlWriter struct {
	enc *yaml.Encoder
}

func (y *yamlWriter) Write(rec *record.Record) error { return y.enc.Encode(rec) }
func (y *yamlWriter) Close() error                  { return y.enc.Close() }
