// Package location finds the line and column of a conversion location, such
// as "Patient.contact[1].telecom[0].rank", in the JSON source of a resource.
package location

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

var errNotFound = errors.New("path not found")

// Position is a 1-based line and column.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// step is one dotted segment of a location with its array indexes.
type step struct {
	name    string
	indexes []int
}

// Find returns the position of the value at path. A leading resource type
// segment is ignored. A segment also matches a choice element, so "value"
// finds "valueQuantity".
func Find(data []byte, path string) (Position, bool) {
	steps, ok := parse(path)
	if !ok || len(data) == 0 {
		return Position{}, false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	for _, s := range steps {
		if s.name != "" {
			if err := enterKey(dec, s.name); err != nil {
				return Position{}, false
			}
		}
		for _, i := range s.indexes {
			if err := enterIndex(dec, i); err != nil {
				return Position{}, false
			}
		}
	}

	offset := valueStart(data, int(dec.InputOffset()))
	if offset >= len(data) {
		return Position{}, false
	}
	return position(data, offset), true
}

func parse(path string) ([]step, bool) {
	parts := strings.Split(path, ".")
	if len(parts) > 0 && parts[0] != "" && parts[0][0] >= 'A' && parts[0][0] <= 'Z' {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return nil, false
	}

	steps := make([]step, 0, len(parts))
	for _, p := range parts {
		name, rest, _ := strings.Cut(p, "[")
		s := step{name: name}
		for rest != "" {
			idx, tail, ok := strings.Cut(rest, "]")
			if !ok {
				return nil, false
			}
			n, err := strconv.Atoi(idx)
			if err != nil || n < 0 {
				return nil, false
			}
			s.indexes = append(s.indexes, n)
			rest = strings.TrimPrefix(tail, "[")
		}
		if s.name == "" && len(s.indexes) == 0 {
			return nil, false
		}
		steps = append(steps, s)
	}
	return steps, true
}

// enterKey positions dec right after the key of the current object that
// matches name.
func enterKey(dec *json.Decoder, name string) error {
	if err := expect(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errNotFound
		}
		if matches(key, name) {
			return nil
		}
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	return errNotFound
}

// enterIndex positions dec right before element i of the current array.
func enterIndex(dec *json.Decoder, i int) error {
	if err := expect(dec, '['); err != nil {
		return err
	}
	for n := 0; dec.More(); n++ {
		if n == i {
			return nil
		}
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	return errNotFound
}

func matches(key, name string) bool {
	if key == name {
		return true
	}
	rest, ok := strings.CutPrefix(key, name)
	return ok && rest[0] >= 'A' && rest[0] <= 'Z'
}

func expect(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errNotFound
	}
	return nil
}

func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}

// valueStart skips separators and whitespace from offset.
func valueStart(data []byte, offset int) int {
	for offset < len(data) {
		switch data[offset] {
		case ' ', '\t', '\r', '\n', ',', ':':
			offset++
		default:
			return offset
		}
	}
	return offset
}

func position(data []byte, offset int) Position {
	p := Position{Line: 1, Column: 1}
	for _, c := range data[:offset] {
		if c == '\n' {
			p.Line++
			p.Column = 1
		} else {
			p.Column++
		}
	}
	return p
}
