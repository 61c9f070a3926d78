// Package navigation tracks where a conversion is in the source resource.
//
// A Path names the current schema position ("Patient.contact.telecom").
// A Tracker remembers, for every repeated path entered so far, the source
// elements bound to it and which of them is being converted. The active
// element of a repeated ancestor scopes the lookup of a repeated
// descendant, so telecoms of the second contact are never paired with the
// first one.
package navigation

import (
	"strings"

	"github.com/gofhir/fhiravro/pkg/property"
)

// Path is an ordered list of segments rooted at a schema record name.
// It is owned by a single conversion and is not safe for concurrent use.
type Path struct {
	segments []string
}

// NewPath creates a path holding only the root segment.
func NewPath(root string) *Path {
	return &Path{segments: []string{root}}
}

// Push appends a segment, normalizing value[x] names.
func (p *Path) Push(segment string) {
	p.segments = append(p.segments, property.FormatSegment(segment))
}

// Pop removes and returns the last segment. The root is never removed.
func (p *Path) Pop() string {
	if len(p.segments) <= 1 {
		return ""
	}
	last := p.segments[len(p.segments)-1]
	p.segments = p.segments[:len(p.segments)-1]
	return last
}

// Len returns the number of segments including the root.
func (p *Path) Len() int { return len(p.segments) }

// Root returns the first segment.
func (p *Path) Root() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[0]
}

// Segments returns a copy of the segments.
func (p *Path) Segments() []string {
	return append([]string(nil), p.segments...)
}

// Prefix returns the first n segments joined with ".".
func (p *Path) Prefix(n int) string {
	if n > len(p.segments) {
		n = len(p.segments)
	}
	return strings.Join(p.segments[:n], ".")
}

// String joins all segments with ".".
func (p *Path) String() string {
	return strings.Join(p.segments, ".")
}

// Clone returns an independent copy.
func (p *Path) Clone() *Path {
	return &Path{segments: p.Segments()}
}
