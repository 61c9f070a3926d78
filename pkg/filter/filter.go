// Package filter selects resources with FHIRPath expressions before they are
// converted.
//
// An expression matches when its result is truthy:
//   - an empty collection is false,
//   - a single boolean is its own value,
//   - any other non-empty collection is true.
package filter

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"

	"github.com/gofhir/fhiravro/cache"
)

// DefaultCacheSize is the number of compiled expressions kept by New.
const DefaultCacheSize = 128

// Filter evaluates FHIRPath expressions against resources. Compiled
// expressions are cached; a Filter is safe for concurrent use.
type Filter struct {
	compiled *cache.Cache[string, *fhirpath.Expression]
}

// New creates a Filter caching up to size compiled expressions.
// A size <= 0 uses DefaultCacheSize.
func New(size int) *Filter {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Filter{compiled: cache.New[string, *fhirpath.Expression](size)}
}

// Compile checks that expression is valid FHIRPath and caches it.
func (f *Filter) Compile(expression string) error {
	_, err := f.expression(expression)
	return err
}

// Match reports whether expression is truthy for resource. The resource may
// be raw JSON ([]byte or string) or any JSON-marshalable value.
func (f *Filter) Match(expression string, resource any) (bool, error) {
	data, err := toJSON(resource)
	if err != nil {
		return false, fmt.Errorf("encode resource: %w", err)
	}

	expr, err := f.expression(expression)
	if err != nil {
		return false, err
	}

	result, err := expr.Evaluate(data)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", expression, err)
	}
	return truthy(result), nil
}

// Select returns the resources of batch that match expression, in order.
// An empty expression selects everything.
func (f *Filter) Select(expression string, batch [][]byte) ([][]byte, error) {
	if expression == "" {
		return batch, nil
	}
	out := make([][]byte, 0, len(batch))
	for i, data := range batch {
		ok, err := f.Match(expression, data)
		if err != nil {
			return nil, fmt.Errorf("resource %d: %w", i, err)
		}
		if ok {
			out = append(out, data)
		}
	}
	return out, nil
}

// CacheSize returns the number of cached expressions.
func (f *Filter) CacheSize() int {
	return f.compiled.Len()
}

func (f *Filter) expression(expression string) (*fhirpath.Expression, error) {
	return f.compiled.GetOrLoad(expression, func() (*fhirpath.Expression, error) {
		expr, err := fhirpath.Compile(expression)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", expression, err)
		}
		return expr, nil
	})
}

func toJSON(resource any) ([]byte, error) {
	switch v := resource.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

func truthy(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}
