// Package element provides the source side of a conversion: a navigable,
// typed view over a FHIR resource.
//
// The converter never depends on a concrete resource model. It reads
// resources through the Element interface, which answers four questions:
// the scalar value of a node, the children under a declared property name,
// the full list of named children, and the node's runtime FHIR type.
//
// Node is the JSON-backed implementation. It understands the FHIR JSON
// conventions the converter relies on:
//
//   - choice elements: "valueQuantity" is exposed as property "value" whose
//     values report FHIR type "Quantity"; the concrete key stays addressable,
//   - primitive extensions: "_birthDate" is merged into the "birthDate"
//     primitive, which then exposes "id" and "extension" children,
//   - "resourceType" is the node type, not a child.
package element

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Element is one node of a source resource.
type Element interface {
	// FHIRType returns the runtime FHIR type of the node ("boolean",
	// "Quantity", "Patient", ...).
	FHIRType() string

	// PrimitiveValue returns the lexical scalar value, or false when the
	// node has none.
	PrimitiveValue() (string, bool)

	// NamedProperty returns the property with the given declared name, or
	// nil when the node does not know it. A known property may hold zero
	// values.
	NamedProperty(name string) *Property

	// Children returns every named property in a stable order.
	Children() []*Property
}

// Narrative is implemented by elements that expose an xhtml narrative div
// through a dedicated accessor.
type Narrative interface {
	Div() (string, bool)
}

// Property is a named, possibly repeated child of an Element.
type Property struct {
	Name   string
	Values []Element
}

// HasValues reports whether the property holds at least one value.
func (p *Property) HasValues() bool {
	return p != nil && len(p.Values) > 0
}

// First returns the first value, or nil.
func (p *Property) First() Element {
	if !p.HasValues() {
		return nil
	}
	return p.Values[0]
}

// Node is a JSON-backed Element.
type Node struct {
	fhirType string
	value    *string
	props    []*Property
	index    map[string]*Property
}

// Option configures how JSON is turned into nodes.
type Option func(*builder)

// WithChoiceBases replaces the list of choice element names used to split
// keys such as "effectiveDateTime".
func WithChoiceBases(bases ...string) Option {
	return func(b *builder) {
		b.bases = bases
	}
}

type builder struct {
	bases []string
}

func newBuilder(opts []Option) *builder {
	b := &builder{bases: DefaultChoiceBases}
	for _, opt := range opts {
		opt(b)
	}
	// Longest base first so "defaultValue" wins over a shorter prefix.
	bases := append([]string(nil), b.bases...)
	sort.SliceStable(bases, func(i, j int) bool { return len(bases[i]) > len(bases[j]) })
	b.bases = bases
	return b
}

// Parse decodes a FHIR JSON resource into a Node tree.
// Numbers keep their lexical form.
func Parse(data []byte, opts ...Option) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("decode resource: not a JSON object")
	}
	return FromMap(m, opts...), nil
}

// FromMap builds a Node tree from already decoded JSON.
func FromMap(m map[string]any, opts ...Option) *Node {
	return newBuilder(opts).object(m, "")
}

// FromModel builds a Node tree from any JSON-marshalable resource model,
// such as the typed structs of github.com/gofhir/fhir/r4.
func FromModel(model any, opts ...Option) (*Node, error) {
	data, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	return Parse(data, opts...)
}

// FHIRType implements Element.
func (n *Node) FHIRType() string { return n.fhirType }

// PrimitiveValue implements Element.
func (n *Node) PrimitiveValue() (string, bool) {
	if n.value == nil {
		return "", false
	}
	return *n.value, true
}

// NamedProperty implements Element.
func (n *Node) NamedProperty(name string) *Property {
	return n.index[name]
}

// Children implements Element.
func (n *Node) Children() []*Property { return n.props }

// Div implements Narrative.
func (n *Node) Div() (string, bool) {
	p := n.index["div"]
	if !p.HasValues() {
		return "", false
	}
	return p.Values[0].PrimitiveValue()
}

func (n *Node) addProperty(name string, values []Element) *Property {
	if p, ok := n.index[name]; ok {
		p.Values = append(p.Values, values...)
		return p
	}
	p := &Property{Name: name, Values: values}
	n.props = append(n.props, p)
	n.index[name] = p
	return p
}

func (b *builder) object(m map[string]any, typ string) *Node {
	n := &Node{fhirType: TypeElement, index: make(map[string]*Property, len(m))}
	if typ != "" {
		n.fhirType = typ
	}
	if rt, ok := m["resourceType"].(string); ok && rt != "" {
		n.fhirType = rt
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		if k == "resourceType" {
			continue
		}
		// "_x" is merged into "x" when both are present.
		if strings.HasPrefix(k, "_") {
			if _, ok := m[k[1:]]; ok {
				continue
			}
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.TrimPrefix(keys[i], "_") < strings.TrimPrefix(keys[j], "_")
	})

	for _, key := range keys {
		var raw, ext any
		name := key
		if strings.HasPrefix(key, "_") {
			name = key[1:]
			ext = m[key]
		} else {
			raw = m[key]
			ext = m["_"+key]
		}

		base, choiceTyp, isChoice := splitChoice(name, b.bases)
		if !isChoice {
			n.addProperty(name, b.values(raw, ext, ""))
			continue
		}
		p := n.addProperty(base, b.values(raw, ext, choiceTyp))
		n.index[name] = &Property{Name: name, Values: p.Values}
	}
	return n
}

func (b *builder) values(raw, ext any, typ string) []Element {
	if items, ok := raw.([]any); ok {
		exts, _ := ext.([]any)
		out := make([]Element, 0, len(items))
		for i, item := range items {
			var e any
			if i < len(exts) {
				e = exts[i]
			}
			if item == nil && e == nil {
				continue
			}
			out = append(out, b.value(item, e, typ))
		}
		return out
	}

	if raw == nil {
		// Extension-only primitive(s).
		switch e := ext.(type) {
		case []any:
			out := make([]Element, 0, len(e))
			for _, item := range e {
				if item != nil {
					out = append(out, b.value(nil, item, typ))
				}
			}
			return out
		case map[string]any:
			return []Element{b.value(nil, e, typ)}
		default:
			return nil
		}
	}

	return []Element{b.value(raw, ext, typ)}
}

func (b *builder) value(v, ext any, typ string) *Node {
	if m, ok := v.(map[string]any); ok {
		return b.object(m, typ)
	}

	n := &Node{fhirType: typ, index: map[string]*Property{}}
	if s, inferred, ok := scalar(v); ok {
		n.value = &s
		if n.fhirType == "" {
			n.fhirType = inferred
		}
	}
	if n.fhirType == "" {
		n.fhirType = TypeString
	}

	if em, ok := ext.(map[string]any); ok {
		for _, p := range b.object(em, "").props {
			n.addProperty(p.Name, p.Values)
		}
	}
	return n
}

// scalar renders a decoded JSON scalar in its lexical form together with
// the primitive type it implies.
func scalar(v any) (string, string, bool) {
	switch x := v.(type) {
	case string:
		return x, TypeString, true
	case bool:
		return strconv.FormatBool(x), TypeBoolean, true
	case json.Number:
		s := x.String()
		if strings.ContainsAny(s, ".eE") {
			return s, TypeDecimal, true
		}
		return s, TypeInteger, true
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if x == float64(int64(x)) {
			return s, TypeInteger, true
		}
		return s, TypeDecimal, true
	default:
		return "", "", false
	}
}

var _ Element = (*Node)(nil)
var _ Narrative = (*Node)(nil)
