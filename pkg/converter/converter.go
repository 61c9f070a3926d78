// Package converter turns a FHIR resource into a generic record shaped by an
// Avro schema.
//
// The schema drives the walk. For every schema node the converter asks the
// resource for matching values:
//
//   - record: each declared field is resolved against the element and
//     converted recursively; unresolved fields stay unset,
//   - array: each source element is converted with the item schema,
//   - union: source values are taken in order and, for each, branches are
//     tried in declared order; the first non-null result wins and a branch
//     that cannot coerce the value is skipped,
//   - primitives: the first value is formatted and parsed.
//
// A Converter is immutable after New and safe for concurrent use. Each call
// keeps its own traversal state.
//
//	c := converter.New(converter.WithMetrics(m))
//	rec, err := c.ConvertJSON(ctx, data, patientSchema)
package converter

import (
	"context"
	"fmt"
	"time"

	"github.com/gofhir/fhir/r4"
	"github.com/hamba/avro/v2"

	"github.com/gofhir/fhiravro"
	"github.com/gofhir/fhiravro/pkg/element"
	"github.com/gofhir/fhiravro/pkg/logger"
	"github.com/gofhir/fhiravro/pkg/primitive"
	"github.com/gofhir/fhiravro/pkg/record"
	"github.com/gofhir/fhiravro/pkg/schema"
)

// Converter converts resources into records.
type Converter struct {
	formatters primitive.Formatters
	log        *logger.Logger
	nav        element.Navigator
	metrics    *fhiravro.Metrics
}

// Option configures a Converter.
type Option func(*Converter)

// WithFormatters replaces the primitive formatters. The list is copied.
// Pass none to disable formatting.
func WithFormatters(fs ...primitive.Formatter) Option {
	return func(c *Converter) {
		c.formatters = append(primitive.Formatters(nil), fs...)
	}
}

// WithLogger sets the logger used for debug output.
// Defaults to logger.Default().
func WithLogger(l *logger.Logger) Option {
	return func(c *Converter) {
		if l != nil {
			c.log = l
		}
	}
}

// WithNavigator sets how repeated paths are looked up in the resource.
func WithNavigator(n element.Navigator) Option {
	return func(c *Converter) {
		if n != nil {
			c.nav = n
		}
	}
}

// WithMetrics records conversion counters into m.
func WithMetrics(m *fhiravro.Metrics) Option {
	return func(c *Converter) {
		c.metrics = m
	}
}

// New creates a Converter. Without options it uses primitive.Default().
func New(opts ...Option) *Converter {
	c := &Converter{
		formatters: primitive.Default(),
		nav:        element.PathNavigator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Metrics returns the metrics the converter records into, or nil.
func (c *Converter) Metrics() *fhiravro.Metrics { return c.metrics }

func (c *Converter) logger() *logger.Logger {
	if c.log != nil {
		return c.log
	}
	return logger.Default()
}

// Convert converts resource according to the record schema s.
// On failure the record is nil.
func (c *Converter) Convert(resource element.Element, s avro.Schema) (*record.Record, error) {
	return c.ConvertContext(context.Background(), resource, s)
}

// ConvertContext is Convert with cancellation, checked at every record.
//
// When both the schema name and the resource type are R4 resource types they
// must be equal.
func (c *Converter) ConvertContext(ctx context.Context, resource element.Element, s avro.Schema) (rec *record.Record, err error) {
	rs, err := schema.Record(s)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	if resource == nil {
		return nil, fmt.Errorf("convert %s: %w", rs.Name(), ErrNilResource)
	}
	if err := checkResourceType(rs, resource.FHIRType()); err != nil {
		return nil, err
	}

	start := time.Now()
	if c.metrics != nil {
		defer func() {
			c.metrics.RecordConversion(rs.Name(), time.Since(start), err)
		}()
	}

	cv := c.newConversion(ctx, resource, rs)
	rec, err = cv.readRecord(rs, []element.Element{resource})
	if err != nil {
		return nil, err
	}
	rec.ForceTag()
	return rec, nil
}

// ConvertJSON parses a FHIR JSON resource and converts it.
func (c *Converter) ConvertJSON(ctx context.Context, data []byte, s avro.Schema) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	node, err := element.Parse(data)
	if err != nil {
		return nil, err
	}
	return c.ConvertContext(ctx, node, s)
}

// ConvertModel converts a typed R4 resource such as *r4.Patient. The schema
// must be named after the resource type.
func (c *Converter) ConvertModel(ctx context.Context, res r4.Resource, s avro.Schema) (*record.Record, error) {
	if res == nil {
		return nil, fmt.Errorf("convert: %w", ErrNilResource)
	}
	rs, err := schema.Record(s)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	if typ := res.GetResourceType(); rs.Name() != typ {
		return nil, fmt.Errorf("convert %s with schema %s: %w", typ, rs.Name(), ErrResourceTypeMismatch)
	}

	node, err := element.FromModel(res)
	if err != nil {
		return nil, err
	}
	return c.ConvertContext(ctx, node, s)
}

func checkResourceType(rs *avro.RecordSchema, typ string) error {
	if typ == "" || typ == rs.Name() {
		return nil
	}
	if !r4.IsKnownResourceType(typ) || !r4.IsKnownResourceType(rs.Name()) {
		return nil
	}
	return fmt.Errorf("convert %s with schema %s: %w", typ, rs.Name(), ErrResourceTypeMismatch)
}
