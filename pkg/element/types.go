package element

import "strings"

// Type names assigned to nodes that carry no explicit FHIR type.
const (
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeInteger = "integer"
	TypeDecimal = "decimal"
	TypeElement = "Element"
)

// PrimitiveTypes contains all FHIR primitive type codes.
var PrimitiveTypes = map[string]bool{
	"boolean":      true,
	"integer":      true,
	"integer64":    true,
	"string":       true,
	"decimal":      true,
	"uri":          true,
	"url":          true,
	"canonical":    true,
	"base64Binary": true,
	"instant":      true,
	"date":         true,
	"dateTime":     true,
	"time":         true,
	"code":         true,
	"oid":          true,
	"id":           true,
	"markdown":     true,
	"unsignedInt":  true,
	"positiveInt":  true,
	"uuid":         true,
	"xhtml":        true,
}

// ChoiceTypeSuffixes contains the type suffixes a choice element ([x]) can
// carry in JSON, e.g. "Quantity" in "valueQuantity".
var ChoiceTypeSuffixes = map[string]bool{
	// Primitives
	"String":       true,
	"Boolean":      true,
	"Integer":      true,
	"Integer64":    true,
	"Decimal":      true,
	"DateTime":     true,
	"Date":         true,
	"Time":         true,
	"Instant":      true,
	"Uri":          true,
	"Url":          true,
	"Canonical":    true,
	"Code":         true,
	"Id":           true,
	"Markdown":     true,
	"Base64Binary": true,
	"Oid":          true,
	"Uuid":         true,
	"PositiveInt":  true,
	"UnsignedInt":  true,

	// Complex types
	"Address":             true,
	"Age":                 true,
	"Annotation":          true,
	"Attachment":          true,
	"CodeableConcept":     true,
	"CodeableReference":   true,
	"Coding":              true,
	"ContactDetail":       true,
	"ContactPoint":        true,
	"Contributor":         true,
	"Count":               true,
	"DataRequirement":     true,
	"Distance":            true,
	"Dosage":              true,
	"Duration":            true,
	"Expression":          true,
	"HumanName":           true,
	"Identifier":          true,
	"Meta":                true,
	"Money":               true,
	"MoneyQuantity":       true,
	"Narrative":           true,
	"ParameterDefinition": true,
	"Period":              true,
	"Quantity":            true,
	"Range":               true,
	"Ratio":               true,
	"RatioRange":          true,
	"Reference":           true,
	"RelatedArtifact":     true,
	"SampledData":         true,
	"Signature":           true,
	"SimpleQuantity":      true,
	"Timing":              true,
	"TriggerDefinition":   true,
	"UsageContext":        true,
}

// DefaultChoiceBases lists the R4 element names declared as [x] that a JSON
// key may start with. Keys are only split into base and type when the base
// is listed here, so "birthDate" stays a plain property.
var DefaultChoiceBases = []string{
	"value",
	"effective",
	"deceased",
	"multipleBirth",
	"onset",
	"abatement",
	"occurrence",
	"performed",
	"born",
	"age",
	"medication",
	"serviced",
	"timing",
	"defaultValue",
	"fixed",
	"pattern",
	"answer",
	"asNeeded",
	"product",
	"item",
	"allowed",
	"used",
	"reported",
	"subject",
	"collected",
	"diagnosis",
	"procedure",
	"location",
}

// IsPrimitiveType reports whether the type code is a FHIR primitive type.
func IsPrimitiveType(typeCode string) bool {
	return PrimitiveTypes[typeCode]
}

// choiceType maps a JSON type suffix to the FHIR type code it denotes:
// lower camel case for primitives ("DateTime" -> "dateTime"), unchanged
// for complex types.
func choiceType(suffix string) string {
	if lower := lowerFirst(suffix); IsPrimitiveType(lower) {
		return lower
	}
	return suffix
}

// splitChoice splits a JSON key such as "valueQuantity" into its choice
// base ("value") and FHIR type ("Quantity").
func splitChoice(key string, bases []string) (base, typ string, ok bool) {
	for _, b := range bases {
		if len(key) <= len(b) || !strings.HasPrefix(key, b) {
			continue
		}
		suffix := key[len(b):]
		if ChoiceTypeSuffixes[suffix] {
			return b, choiceType(suffix), true
		}
	}
	return "", "", false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
