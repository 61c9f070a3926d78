package navigation

import (
	"strings"

	"github.com/gofhir/fhiravro/pkg/element"
	"github.com/gofhir/fhiravro/pool"
)

// Binding holds the source elements bound to one repeated path and the
// position of the element being converted.
type Binding struct {
	Nodes  []element.Element
	Cursor int

	// offset is where the most recent Bind started, so indexes can be
	// reported relative to the active parent.
	offset int
}

// Tracker is the array binding table of one conversion.
// A path is present only while it has at least one bound element. Cursors
// only move forward, except through Restore.
type Tracker struct {
	root     element.Element
	nav      element.Navigator
	bindings map[string]*Binding
}

// NewTracker creates a tracker for a conversion of root. A nil navigator
// defaults to element.PathNavigator.
func NewTracker(root element.Element, nav element.Navigator) *Tracker {
	if nav == nil {
		nav = element.PathNavigator{}
	}
	return &Tracker{
		root:     root,
		nav:      nav,
		bindings: make(map[string]*Binding),
	}
}

// Bind appends nodes to the binding of path. Empty lists are ignored.
func (t *Tracker) Bind(path string, nodes []element.Element) {
	if len(nodes) == 0 {
		return
	}
	if b, ok := t.bindings[path]; ok {
		b.offset = len(b.Nodes)
		b.Nodes = append(b.Nodes, nodes...)
		return
	}
	t.bindings[path] = &Binding{Nodes: append([]element.Element(nil), nodes...)}
}

// Has reports whether path has bound elements.
func (t *Tracker) Has(path string) bool {
	_, ok := t.bindings[path]
	return ok
}

// Current returns the element at the cursor of path, or nil when the path
// is absent or exhausted.
func (t *Tracker) Current(path string) element.Element {
	b, ok := t.bindings[path]
	if !ok || b.Cursor >= len(b.Nodes) {
		return nil
	}
	return b.Nodes[b.Cursor]
}

// Progress advances the cursor of path. Absent paths are ignored.
func (t *Tracker) Progress(path string) {
	if b, ok := t.bindings[path]; ok {
		b.Cursor++
	}
}

// Cursor returns the cursor of path, or -1 when absent.
func (t *Tracker) Cursor(path string) int {
	b, ok := t.bindings[path]
	if !ok {
		return -1
	}
	return b.Cursor
}

// Len returns the number of elements bound to path.
func (t *Tracker) Len(path string) int {
	if b, ok := t.bindings[path]; ok {
		return len(b.Nodes)
	}
	return 0
}

// Exhausted reports whether every element bound to path has been consumed.
func (t *Tracker) Exhausted(path string) bool {
	b, ok := t.bindings[path]
	return ok && b.Cursor >= len(b.Nodes)
}

// Snapshot records the binding table so a conversion attempt can be undone
// with Restore.
type Snapshot map[string]Binding

// Snapshot returns the current cursors, offsets and bound lengths.
func (t *Tracker) Snapshot() Snapshot {
	snap := make(Snapshot, len(t.bindings))
	for path, b := range t.bindings {
		snap[path] = Binding{Nodes: b.Nodes[:len(b.Nodes):len(b.Nodes)], Cursor: b.Cursor, offset: b.offset}
	}
	return snap
}

// Restore resets the table to snap. Paths bound after the snapshot are
// dropped and elements appended since are forgotten.
func (t *Tracker) Restore(snap Snapshot) {
	for path := range t.bindings {
		if _, ok := snap[path]; !ok {
			delete(t.bindings, path)
		}
	}
	for path, saved := range snap {
		b, ok := t.bindings[path]
		if !ok {
			b = &Binding{}
			t.bindings[path] = b
		}
		b.Nodes = saved.Nodes
		b.Cursor = saved.Cursor
		b.offset = saved.offset
	}
}

// Index returns the position of the active element of path within the
// elements of its current parent.
func (t *Tracker) Index(path string) (int, bool) {
	b, ok := t.bindings[path]
	if !ok || b.Cursor >= len(b.Nodes) || b.Cursor < b.offset {
		return 0, false
	}
	return b.Cursor - b.offset, true
}

// DetectConflict binds the source elements of the repeated path p.
//
// Proper prefixes of p are walked from the root. The first bound prefix
// scopes the lookup: the remaining segments are navigated from its active
// element. Without a bound prefix the path is navigated from the
// conversion root. Only non-empty results are bound; they are returned.
func (t *Tracker) DetectConflict(p *Path) []element.Element {
	segments := p.Segments()
	full := p.String()

	for k := 1; k < len(segments); k++ {
		prefix := strings.Join(segments[:k], ".")
		parent := t.Current(prefix)
		if parent == nil {
			continue
		}
		nodes := t.nav.Values(parent, strings.Join(segments[k:], "."))
		t.Bind(full, nodes)
		return nodes
	}

	if len(segments) < 2 {
		return nil
	}
	nodes := t.nav.Values(t.root, strings.Join(segments[1:], "."))
	t.Bind(full, nodes)
	return nodes
}

// Location renders p with the index of every active repeated segment,
// e.g. "Patient.contact[1].telecom[0].value".
func (t *Tracker) Location(p *Path) string {
	segments := p.Segments()
	return pool.BuildPath(func(b *pool.PathBuilder) {
		for k, seg := range segments {
			b.AppendWithDot(seg)
			if k == 0 {
				continue
			}
			if i, ok := t.Index(strings.Join(segments[:k+1], ".")); ok {
				b.AppendIndex(i)
			}
		}
	})
}
