package converter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/hamba/avro/v2"
	"github.com/rs/zerolog"

	"github.com/gofhir/fhiravro/pkg/element"
	"github.com/gofhir/fhiravro/pkg/navigation"
	"github.com/gofhir/fhiravro/pkg/property"
	"github.com/gofhir/fhiravro/pkg/record"
	"github.com/gofhir/fhiravro/pkg/schema"
)

const divField = "div"

// conversion is the state of one Convert call.
type conversion struct {
	*Converter

	ctx     context.Context
	zl      *zerolog.Logger
	path    *navigation.Path
	tracker *navigation.Tracker

	// metadata is the element-metadata field of the top-level schema.
	metadata *avro.Field
}

func (c *Converter) newConversion(ctx context.Context, root element.Element, rs *avro.RecordSchema) *conversion {
	cv := &conversion{
		Converter: c,
		ctx:       ctx,
		zl:        c.logger().Zerolog(),
		path:      navigation.NewPath(rs.Name()),
		tracker:   navigation.NewTracker(root, c.nav),
		metadata:  schema.ElementMetadataField(rs),
	}
	if cv.metadata != nil {
		cv.zl.Debug().
			Str("schema", rs.Name()).
			Str("field", cv.metadata.Name()).
			Str("type", schema.Summary(cv.metadata.Type())).
			Msg("element metadata field")
	}
	return cv
}

func (cv *conversion) read(s avro.Schema, nodes []element.Element) (any, error) {
	s = schema.Deref(s)

	switch s.Type() {
	case avro.Record, avro.Error:
		rec, err := cv.readRecord(s.(*avro.RecordSchema), nodes)
		if err != nil {
			return nil, err
		}
		return rec, nil
	case avro.Array:
		list, err := cv.readArray(s.(*avro.ArraySchema), nodes)
		if err != nil {
			return nil, err
		}
		return list, nil
	case avro.Union:
		return cv.readUnion(s.(*avro.UnionSchema), nodes)
	case avro.Enum, avro.String, avro.Bytes,
		avro.Int, avro.Long, avro.Float, avro.Double, avro.Boolean:
		return cv.readPrimitive(s, nodes)
	case avro.Null:
		return nil, nil
	default:
		return nil, cv.fail(s, fmt.Errorf("%s: %w", s.Type(), ErrUnsupportedSchema))
	}
}

func (cv *conversion) readRecord(rs *avro.RecordSchema, nodes []element.Element) (*record.Record, error) {
	if err := cv.ctx.Err(); err != nil {
		return nil, cv.fail(rs, err)
	}

	rec := record.New(rs.Name(), schema.FieldNames(rs))
	for _, node := range nodes {
		for _, f := range rs.Fields() {
			if f.Name() == divField {
				readDiv(rec, node)
				continue
			}

			prop, ok := property.Resolve(node, f.Name())
			if !ok || !prop.HasValues() {
				continue
			}

			cv.path.Push(f.Name())
			v, err := cv.read(f.Type(), prop.Values)
			cv.path.Pop()
			if err != nil {
				return nil, err
			}
			_ = rec.Set(f.Name(), v)
		}
	}

	// A tag clash means the source populated the field; keep its value.
	_ = rec.Tag()

	if cv.metrics != nil {
		cv.metrics.RecordRecord()
	}
	return rec, nil
}

func readDiv(rec *record.Record, node element.Element) {
	nar, ok := node.(element.Narrative)
	if !ok {
		return
	}
	if div, ok := nar.Div(); ok {
		_ = rec.Set(divField, div)
	}
}

func (cv *conversion) readArray(as *avro.ArraySchema, nodes []element.Element) ([]any, error) {
	key := cv.path.String()
	if !cv.tracker.Has(key) || cv.tracker.Exhausted(key) {
		cv.tracker.DetectConflict(cv.path)
	}

	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		v, err := cv.read(as.Items(), []element.Element{cv.active(key, n)})
		if err != nil {
			return nil, err
		}
		cv.tracker.Progress(key)
		out = append(out, v)
	}
	return out, nil
}

// active returns the element to convert for the repeated path key. The
// resolved element always wins; a different tracked element is reported.
func (cv *conversion) active(key string, resolved element.Element) element.Element {
	tracked := cv.tracker.Current(key)
	if tracked == nil || sameElement(tracked, resolved) {
		return resolved
	}

	cv.zl.Debug().
		Str("path", cv.tracker.Location(cv.path)).
		Str("tracked", tracked.FHIRType()).
		Str("resolved", resolved.FHIRType()).
		Msg("tracked element differs from resolved element")
	if cv.metrics != nil {
		cv.metrics.RecordTrackerMismatch()
	}
	return resolved
}

func sameElement(a, b element.Element) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// readUnion tries the source values one at a time, in order; for each value
// the branches are tried in declared order and the first non-nil result
// wins. An array branch takes all values at once and is tried only with the
// first. Tracker cursors moved by a branch that is not taken are restored.
func (cv *conversion) readUnion(us *avro.UnionSchema, nodes []element.Element) (any, error) {
	for i, n := range nodes {
		for _, branch := range us.Types() {
			candidates := []element.Element{n}
			if schema.Deref(branch).Type() == avro.Array {
				if i > 0 {
					continue
				}
				candidates = nodes
			}

			v, err := cv.tryBranch(branch, candidates)
			if err != nil {
				return nil, err
			}
			if v != nil {
				return v, nil
			}
		}
	}
	return nil, nil
}

// tryBranch converts nodes with one union branch. A rejection yields a nil
// value and leaves the tracker as it was before the attempt.
func (cv *conversion) tryBranch(branch avro.Schema, nodes []element.Element) (any, error) {
	snap := cv.tracker.Snapshot()
	v, err := cv.read(branch, nodes)
	if err == nil && v != nil {
		return v, nil
	}
	cv.tracker.Restore(snap)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, ErrBranchRejected) {
		return nil, err
	}

	cv.zl.Debug().
		Str("path", cv.path.String()).
		Str("branch", schema.Summary(branch)).
		Err(err).
		Msg("union branch rejected")
	if cv.metrics != nil {
		cv.metrics.RecordRejectedBranch()
	}
	return nil, nil
}

// readPrimitive extracts the first value, formats it and coerces it to the
// Avro type of s. An absent value yields nil.
func (cv *conversion) readPrimitive(s avro.Schema, nodes []element.Element) (any, error) {
	if len(nodes) == 0 || nodes[0] == nil {
		return nil, nil
	}
	raw, ok := nodes[0].PrimitiveValue()
	if !ok {
		return nil, nil
	}

	v, err := coerce(s.Type(), cv.formatters.Format(raw))
	if err != nil {
		return nil, cv.fail(s, err)
	}
	return v, nil
}

func coerce(typ avro.Type, v string) (any, error) {
	switch typ {
	case avro.String, avro.Enum:
		return v, nil
	case avro.Bytes:
		return []byte(v), nil
	case avro.Int:
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil, reject(v, typ)
		}
		return int32(n), nil
	case avro.Long:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, reject(v, typ)
		}
		return n, nil
	case avro.Float:
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, reject(v, typ)
		}
		return float32(f), nil
	case avro.Double:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, reject(v, typ)
		}
		return f, nil
	case avro.Boolean:
		switch {
		case strings.EqualFold(v, "true"):
			return true, nil
		case strings.EqualFold(v, "false"):
			return false, nil
		default:
			return nil, reject(v, typ)
		}
	default:
		return nil, fmt.Errorf("%s: %w", typ, ErrUnsupportedSchema)
	}
}

func reject(v string, typ avro.Type) error {
	return fmt.Errorf("%q is not a valid %s: %w", v, typ, ErrBranchRejected)
}

// fail attaches the current location to err unless it already has one.
func (cv *conversion) fail(s avro.Schema, err error) error {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConversionError{
		Location: cv.tracker.Location(cv.path),
		Schema:   schema.Summary(s),
		Err:      err,
	}
}
