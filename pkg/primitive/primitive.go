// Package primitive provides pattern-guarded formatters applied to every FHIR
// primitive value before it is coerced to an Avro primitive type.
//
// A formatter declares a regular expression; the first formatter whose
// expression matches the whole raw value rewrites it. Values no formatter
// claims pass through unchanged.
package primitive

import (
	"regexp"
	"strconv"
	"sync"
	"time"
)

// Formatter rewrites raw primitive values that match its pattern.
type Formatter interface {
	// Pattern returns the expression a raw value must fully match.
	Pattern() *regexp.Regexp

	// Format rewrites a matching value.
	Format(raw string) string
}

// Formatters is an ordered list of formatters. The first match wins.
type Formatters []Formatter

// Format applies the first formatter whose pattern fully matches raw.
func (fs Formatters) Format(raw string) string {
	for _, f := range fs {
		if fullMatch(f.Pattern(), raw) {
			return f.Format(raw)
		}
	}
	return raw
}

// anchored caches the whole-value form of patterns supplied by Formatter
// implementations other than FormatFunc.
var anchored sync.Map // *regexp.Regexp -> *regexp.Regexp

func fullMatch(re *regexp.Regexp, s string) bool {
	if v, ok := anchored.Load(re); ok {
		return v.(*regexp.Regexp).MatchString(s)
	}
	full, err := regexp.Compile(anchor(re.String()))
	if err != nil {
		return false
	}
	anchored.Store(re, full)
	return full.MatchString(s)
}

// anchor wraps pattern so it only matches whole values. Alternations keep
// their meaning: `a|ab` matches "ab".
func anchor(pattern string) string {
	return `^(?:` + pattern + `)$`
}

// FormatFunc adapts a function into a Formatter guarded by pattern.
type FormatFunc struct {
	pattern *regexp.Regexp
	fn      func(string) string
}

// New creates a formatter from a pattern and a rewrite function. The pattern
// is anchored to the whole value.
// It panics if the pattern does not compile, like regexp.MustCompile.
func New(pattern string, fn func(string) string) *FormatFunc {
	re := regexp.MustCompile(anchor(pattern))
	anchored.Store(re, re)
	return &FormatFunc{pattern: re, fn: fn}
}

// Pattern implements Formatter.
func (f *FormatFunc) Pattern() *regexp.Regexp { return f.pattern }

// Format implements Formatter.
func (f *FormatFunc) Format(raw string) string { return f.fn(raw) }

const millisPerDay = 24 * 60 * 60 * 1000

// Date rewrites a FHIR date (YYYY-MM-DD) into days since the Unix epoch,
// the lexical form of the Avro "date" logical type.
var Date = New(`\d{4}-\d{2}-\d{2}`, func(raw string) string {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return raw
	}
	ms := t.UnixMilli()
	days := ms / millisPerDay
	if ms%millisPerDay < 0 {
		days--
	}
	return strconv.FormatInt(days, 10)
})

// DateTime rewrites a FHIR dateTime/instant carrying a time and a zone into
// milliseconds since the Unix epoch (Avro "timestamp-millis").
var DateTime = New(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})`, func(raw string) string {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return raw
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
})

var defaults = Formatters{Date, DateTime}

// Default returns the built-in formatter list: Date, then DateTime.
// The returned slice is a copy; callers may extend it freely.
func Default() Formatters {
	out := make(Formatters, len(defaults))
	copy(out, defaults)
	return out
}
