package schema

import (
	"fmt"
	"io"
	"strings"

	"github.com/hamba/avro/v2"
)

// Summary renders a one-line description of a schema, such as
// "union<null, array<HumanName>>".
func Summary(s avro.Schema) string {
	switch x := s.(type) {
	case nil:
		return "<nil>"
	case *avro.RefSchema:
		return Name(x.Schema())
	case *avro.ArraySchema:
		return "array<" + Summary(x.Items()) + ">"
	case *avro.MapSchema:
		return "map<" + Summary(x.Values()) + ">"
	case *avro.UnionSchema:
		parts := make([]string, len(x.Types()))
		for i, t := range x.Types() {
			parts[i] = Summary(t)
		}
		return "union<" + strings.Join(parts, ", ") + ">"
	case *avro.PrimitiveSchema:
		if l := x.Logical(); l != nil {
			return fmt.Sprintf("%s(%s)", x.Type(), l.Type())
		}
		return string(x.Type())
	case avro.NamedSchema:
		return x.Name()
	default:
		return string(s.Type())
	}
}

// Describe writes an indented tree of a schema. Each named type is
// expanded once; later uses print its name only.
func Describe(w io.Writer, s avro.Schema) error {
	d := &describer{w: w, seen: make(map[string]bool)}
	d.expand(s, 0)
	return d.err
}

type describer struct {
	w    io.Writer
	seen map[string]bool
	err  error
}

func (d *describer) line(depth int, format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, strings.Repeat("  ", depth)+format+"\n", args...)
}

func (d *describer) expand(s avro.Schema, depth int) {
	switch x := s.(type) {
	case *avro.RecordSchema:
		if d.seen[x.FullName()] {
			return
		}
		d.seen[x.FullName()] = true
		d.line(depth, "%s (record)", x.Name())
		for _, f := range x.Fields() {
			d.line(depth+1, "%s: %s", f.Name(), Summary(f.Type()))
			d.expand(f.Type(), depth+2)
		}
	case *avro.EnumSchema:
		if d.seen[x.FullName()] {
			return
		}
		d.seen[x.FullName()] = true
		d.line(depth, "%s (enum: %s)", x.Name(), strings.Join(x.Symbols(), "|"))
	case *avro.ArraySchema:
		d.expand(x.Items(), depth)
	case *avro.MapSchema:
		d.expand(x.Values(), depth)
	case *avro.UnionSchema:
		for _, t := range x.Types() {
			d.expand(t, depth)
		}
	}
}
