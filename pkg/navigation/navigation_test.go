package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/fhiravro/pkg/element"
)

const patient = `{
  "resourceType": "Patient",
  "contact": [
    {"telecom": [{"value": "a"}, {"value": "b"}]},
    {"name": {"family": "none"}},
    {"telecom": [{"value": "c"}]}
  ]
}`

func parse(t *testing.T) element.Element {
	t.Helper()
	n, err := element.Parse([]byte(patient))
	require.NoError(t, err)
	return n
}

func values(t *testing.T, nodes []element.Element) []string {
	t.Helper()
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		p := n.NamedProperty("value")
		require.True(t, p.HasValues())
		v, _ := p.First().PrimitiveValue()
		out = append(out, v)
	}
	return out
}

func TestPath(t *testing.T) {
	p := NewPath("Observation")
	p.Push("component")
	p.Push("valuequantity")

	assert.Equal(t, "Observation.component.valueQuantity", p.String())
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, "Observation.component", p.Prefix(2))
	assert.Equal(t, p.String(), p.Prefix(10))

	clone := p.Clone()
	assert.Equal(t, "valueQuantity", p.Pop())
	assert.Equal(t, "Observation.component", p.String())
	assert.Equal(t, "Observation.component.valueQuantity", clone.String())

	p.Pop()
	assert.Equal(t, "", p.Pop(), "root is never popped")
	assert.Equal(t, "Observation", p.Root())

	segs := p.Segments()
	segs[0] = "changed"
	assert.Equal(t, "Observation", p.String())
}

func TestTrackerBind(t *testing.T) {
	root := parse(t)
	tr := NewTracker(root, nil)

	tr.Bind("x", nil)
	assert.False(t, tr.Has("x"), "empty bindings are not registered")
	assert.Equal(t, -1, tr.Cursor("x"))
	assert.Nil(t, tr.Current("x"))
	assert.False(t, tr.Exhausted("x"))

	a := element.FromMap(map[string]any{"value": "a"})
	b := element.FromMap(map[string]any{"value": "b"})
	tr.Bind("x", []element.Element{a})
	assert.Same(t, a, tr.Current("x"))

	tr.Progress("x")
	assert.True(t, tr.Exhausted("x"))
	assert.Nil(t, tr.Current("x"))

	tr.Bind("x", []element.Element{b})
	assert.Equal(t, 2, tr.Len("x"))
	assert.Equal(t, 1, tr.Cursor("x"))
	assert.Same(t, b, tr.Current("x"))

	i, ok := tr.Index("x")
	assert.True(t, ok)
	assert.Equal(t, 0, i, "index is relative to the latest bind")

	tr.Progress("missing")
	assert.False(t, tr.Has("missing"))
}

func TestDetectConflictFromRoot(t *testing.T) {
	root := parse(t)
	tr := NewTracker(root, nil)

	p := NewPath("Patient")
	p.Push("contact")
	nodes := tr.DetectConflict(p)
	assert.Len(t, nodes, 3)
	assert.Equal(t, 3, tr.Len("Patient.contact"))
}

func TestDetectConflictScopedByActiveAncestor(t *testing.T) {
	root := parse(t)
	tr := NewTracker(root, nil)

	contact := NewPath("Patient")
	contact.Push("contact")
	require.Len(t, tr.DetectConflict(contact), 3)

	telecom := contact.Clone()
	telecom.Push("telecom")

	// contact[0]
	got := tr.DetectConflict(telecom)
	assert.Equal(t, []string{"a", "b"}, values(t, got))
	assert.Equal(t, "Patient.contact[0].telecom[0]", tr.Location(telecom))
	tr.Progress("Patient.contact.telecom")
	assert.Equal(t, "Patient.contact[0].telecom[1]", tr.Location(telecom))
	tr.Progress("Patient.contact.telecom")
	assert.True(t, tr.Exhausted("Patient.contact.telecom"))
	tr.Progress("Patient.contact")

	// contact[1] has no telecom: nothing is bound.
	assert.Empty(t, tr.DetectConflict(telecom))
	assert.Equal(t, 2, tr.Len("Patient.contact.telecom"))
	tr.Progress("Patient.contact")

	// contact[2]
	got = tr.DetectConflict(telecom)
	assert.Equal(t, []string{"c"}, values(t, got))
	assert.Equal(t, "Patient.contact[2].telecom[0]", tr.Location(telecom))

	cur := tr.Current("Patient.contact.telecom")
	require.NotNil(t, cur)
	assert.Equal(t, []string{"c"}, values(t, []element.Element{cur}))
}

func TestDetectConflictSkipsExhaustedAncestor(t *testing.T) {
	root := parse(t)
	tr := NewTracker(root, nil)

	contact := NewPath("Patient")
	contact.Push("contact")
	tr.DetectConflict(contact)
	for i := 0; i < 3; i++ {
		tr.Progress("Patient.contact")
	}

	telecom := contact.Clone()
	telecom.Push("telecom")
	got := tr.DetectConflict(telecom)
	assert.Equal(t, []string{"a", "b", "c"}, values(t, got))
}

func TestTrackerRestore(t *testing.T) {
	root := parse(t)
	tr := NewTracker(root, nil)

	contact := NewPath("Patient")
	contact.Push("contact")
	tr.DetectConflict(contact)
	tr.Progress("Patient.contact")
	snap := tr.Snapshot()

	telecom := contact.Clone()
	telecom.Push("telecom")
	tr.Progress("Patient.contact")
	tr.Progress("Patient.contact")
	tr.DetectConflict(telecom)
	tr.Bind("Patient.contact", []element.Element{element.FromMap(map[string]any{})})
	require.True(t, tr.Has("Patient.contact.telecom"))
	require.Equal(t, 4, tr.Len("Patient.contact"))

	tr.Restore(snap)
	assert.False(t, tr.Has("Patient.contact.telecom"), "paths bound after the snapshot are dropped")
	assert.Equal(t, 3, tr.Len("Patient.contact"))
	assert.Equal(t, 1, tr.Cursor("Patient.contact"))
	i, ok := tr.Index("Patient.contact")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, "Patient.contact[1]", tr.Location(contact))
}

func TestDetectConflictRootOnly(t *testing.T) {
	tr := NewTracker(parse(t), nil)
	assert.Nil(t, tr.DetectConflict(NewPath("Patient")))
}

func TestLocationWithoutBindings(t *testing.T) {
	tr := NewTracker(parse(t), nil)

	p := NewPath("Patient")
	p.Push("name")
	p.Push("family")
	assert.Equal(t, "Patient.name.family", tr.Location(p))
}

type countingNavigator struct {
	calls []string
}

func (c *countingNavigator) Values(from element.Element, path string) []element.Element {
	c.calls = append(c.calls, path)
	return element.PathNavigator{}.Values(from, path)
}

func TestTrackerUsesNavigator(t *testing.T) {
	nav := &countingNavigator{}
	tr := NewTracker(parse(t), nav)

	p := NewPath("Patient")
	p.Push("contact")
	tr.DetectConflict(p)
	p.Push("telecom")
	tr.DetectConflict(p)

	assert.Equal(t, []string{"contact", "telecom"}, nav.calls)
}
