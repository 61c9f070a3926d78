package element

import "strings"

// Navigator resolves a dotted path relative to an element and returns every
// element reached, flattening repeated properties in document order.
type Navigator interface {
	Values(from Element, path string) []Element
}

// PathNavigator navigates dotted paths ("Patient.contact.telecom") through
// NamedProperty lookups. A leading segment equal to the starting element's
// FHIR type is skipped, so absolute resource paths work from the root.
type PathNavigator struct{}

// Values implements Navigator.
func (PathNavigator) Values(from Element, path string) []Element {
	if from == nil {
		return nil
	}
	if path == "" {
		return []Element{from}
	}

	segments := strings.Split(path, ".")
	if segments[0] == from.FHIRType() {
		segments = segments[1:]
	}

	current := []Element{from}
	for _, seg := range segments {
		var next []Element
		for _, e := range current {
			if p := e.NamedProperty(seg); p != nil {
				next = append(next, p.Values...)
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

// Navigate is a convenience wrapper around PathNavigator.
func Navigate(from Element, path string) []Element {
	return PathNavigator{}.Values(from, path)
}
