// Package schema loads Avro schemas and answers the structural questions the
// converter asks about them.
package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hamba/avro/v2"
)

// ErrNotRecord is returned when a record schema is required but another
// kind was given.
var ErrNotRecord = errors.New("schema is not a record")

// Parse parses an Avro schema from its JSON text. Each call uses its own
// name cache so named types from unrelated schemas never collide.
func Parse(text string) (avro.Schema, error) {
	s, err := avro.ParseWithCache(text, "", &avro.SchemaCache{})
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return s, nil
}

// ParseBytes is Parse for raw bytes.
func ParseBytes(data []byte) (avro.Schema, error) {
	return Parse(string(data))
}

// ParseFile reads and parses a schema file (.avsc).
func ParseFile(path string) (avro.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	s, err := ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Deref follows named references to the schema they name.
func Deref(s avro.Schema) avro.Schema {
	for {
		ref, ok := s.(*avro.RefSchema)
		if !ok {
			return s
		}
		s = ref.Schema()
	}
}

// Record returns s as a record schema, following references.
func Record(s avro.Schema) (*avro.RecordSchema, error) {
	if s == nil {
		return nil, ErrNotRecord
	}
	rs, ok := Deref(s).(*avro.RecordSchema)
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.Type(), ErrNotRecord)
	}
	return rs, nil
}

// FieldNames returns the declared field names of a record in order.
func FieldNames(rs *avro.RecordSchema) []string {
	fields := rs.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
	}
	return names
}

// ElementMetadataField returns the first field whose name starts with "_",
// or nil.
func ElementMetadataField(rs *avro.RecordSchema) *avro.Field {
	for _, f := range rs.Fields() {
		if strings.HasPrefix(f.Name(), "_") {
			return f
		}
	}
	return nil
}

// Name returns a display name for any schema: the full name of named
// types, the type otherwise.
func Name(s avro.Schema) string {
	if s == nil {
		return "<nil>"
	}
	if n, ok := s.(avro.NamedSchema); ok {
		return n.Name()
	}
	return string(s.Type())
}
