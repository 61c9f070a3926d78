// Package property maps Avro field names onto the properties of a FHIR
// element.
//
// Field names follow FHIR JSON naming with a few conventions:
//
//   - value[x] fields name their type: "valueQuantity", "valueBoolean",
//   - fields starting with "_" hold element metadata (id and extensions) of a
//     primitive sibling,
//   - any other name matches a property directly or case-insensitively.
package property

import (
	"strings"

	"github.com/gofhir/fhiravro/pkg/element"
)

const (
	choicePrefix = "value"
	recordedDate = "recordedDate"
)

// IsChoiceField reports whether name is a typed value[x] field: "value"
// followed by a letter.
func IsChoiceField(name string) bool {
	if len(name) <= len(choicePrefix) || !strings.HasPrefix(name, choicePrefix) {
		return false
	}
	c := name[len(choicePrefix)]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// ChoiceType returns the type part of a value[x] field name, lower-cased
// ("valueDateTime" -> "datetime"). It returns "" for other names.
func ChoiceType(name string) string {
	if !IsChoiceField(name) {
		return ""
	}
	return strings.ToLower(name[len(choicePrefix):])
}

// IsMetadataField reports whether name holds element metadata ("_birthDate").
func IsMetadataField(name string) bool {
	return strings.HasPrefix(name, "_")
}

// FormatSegment normalizes a path segment: a "value..." segment of at least
// six characters gets its sixth character upper-cased, so "valuequantity"
// and "valueQuantity" address the same path.
func FormatSegment(segment string) string {
	if len(segment) < len(choicePrefix)+1 || !strings.HasPrefix(segment, choicePrefix) {
		return segment
	}
	i := len(choicePrefix)
	return segment[:i] + strings.ToUpper(segment[i:i+1]) + segment[i+1:]
}

// Resolve returns the property of node that feeds the Avro field name.
// A property known to the node resolves even when it holds no values;
// callers check HasValues.
func Resolve(node element.Element, field string) (*element.Property, bool) {
	if node == nil {
		return nil, false
	}

	if IsChoiceField(field) {
		return resolveChoice(node, field)
	}

	if field == "_"+recordedDate {
		if p, ok := resolveRecordedDateExtension(node); ok {
			return p, true
		}
	}

	if p := node.NamedProperty(lowerFirst(field)); p != nil {
		return p, true
	}

	for _, p := range node.Children() {
		if strings.EqualFold(p.Name, field) {
			return p, true
		}
	}
	return nil, false
}

func resolveChoice(node element.Element, field string) (*element.Property, bool) {
	p := node.NamedProperty(choicePrefix)
	if !p.HasValues() {
		return nil, false
	}
	if strings.ToLower(p.First().FHIRType()) != ChoiceType(field) {
		return nil, false
	}
	return p, true
}

// resolveRecordedDateExtension routes "_recordedDate" to the extensions of
// a recordedDate that carries no value of its own.
func resolveRecordedDateExtension(node element.Element) (*element.Property, bool) {
	p := node.NamedProperty(recordedDate)
	if !p.HasValues() {
		return nil, false
	}
	first := p.First()
	if _, ok := first.PrimitiveValue(); ok {
		return nil, false
	}
	ext := first.NamedProperty("extension")
	if ext == nil {
		return nil, false
	}
	return ext, true
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
