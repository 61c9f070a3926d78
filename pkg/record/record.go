// Package record holds the generic output of a conversion: a named set of
// declared fields whose values are scalars, nested records, lists or nil.
package record

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// TypeTag is the field every record is tagged with after construction.
const TypeTag = "resourceType"

var (
	// ErrUnknownField is returned when setting a field the record does not declare.
	ErrUnknownField = errors.New("unknown field")

	// ErrTagConflict is returned when the type tag field already holds a value.
	ErrTagConflict = errors.New("type tag already set")
)

// Record is a generic record shaped by a schema.
type Record struct {
	name   string
	fields []string
	known  map[string]struct{}
	values map[string]any
}

// New creates an empty record with the given schema name and declared fields.
func New(name string, fields []string) *Record {
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f] = struct{}{}
	}
	return &Record{
		name:   name,
		fields: append([]string(nil), fields...),
		known:  known,
		values: make(map[string]any, len(fields)),
	}
}

// Name returns the schema name.
func (r *Record) Name() string { return r.name }

// Fields returns the declared field names in schema order.
func (r *Record) Fields() []string { return r.fields }

// Has reports whether the field has been set.
func (r *Record) Has(field string) bool {
	_, ok := r.values[field]
	return ok
}

// Get returns a field value and whether it was set.
func (r *Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Set stores a value for a declared field.
func (r *Record) Set(field string, v any) error {
	if _, ok := r.known[field]; !ok {
		return fmt.Errorf("%s.%s: %w", r.name, field, ErrUnknownField)
	}
	r.values[field] = v
	return nil
}

// Tag stores the schema name under TypeTag. It fails when the record does
// not declare the tag field or when the field was already populated.
func (r *Record) Tag() error {
	if r.Has(TypeTag) {
		return fmt.Errorf("%s: %w", r.name, ErrTagConflict)
	}
	return r.Set(TypeTag, r.name)
}

// ForceTag stores the schema name under TypeTag, overwriting any value.
// Records that do not declare the field are left untouched.
func (r *Record) ForceTag() {
	_ = r.Set(TypeTag, r.name)
}

// Len returns the number of set fields.
func (r *Record) Len() int { return len(r.values) }

// ToMap converts the record into plain maps and slices, recursively.
// Unset fields are omitted.
func (r *Record) ToMap() map[string]any {
	out := make(map[string]any, len(r.values))
	for _, f := range r.fields {
		if v, ok := r.values[f]; ok {
			out[f] = plain(v)
		}
	}
	return out
}

func plain(v any) any {
	switch x := v.(type) {
	case *Record:
		if x == nil {
			return nil
		}
		return x.ToMap()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	case []byte:
		return string(x)
	default:
		return v
	}
}

// MarshalJSON renders set fields in schema order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range r.fields {
		v, ok := r.values[f]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(readable(v))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// readable keeps byte fields as text instead of base64.
func readable(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = readable(item)
		}
		return out
	default:
		return v
	}
}

// MarshalYAML renders set fields in schema order.
func (r *Record) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range r.fields {
		v, ok := r.values[f]
		if !ok {
			continue
		}
		var val yaml.Node
		if err := val.Encode(readable(v)); err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f},
			&val,
		)
	}
	return node, nil
}
