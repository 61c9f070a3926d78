package converter

import (
	"errors"
	"fmt"

	"github.com/gofhir/fhiravro/pkg/schema"
)

var (
	// ErrBranchRejected reports that a value could not be coerced to the
	// schema being tried. A union skips the branch; anywhere else the
	// conversion fails.
	ErrBranchRejected = errors.New("value rejected by schema")

	// ErrUnsupportedSchema reports a schema kind the converter cannot
	// produce (map, fixed).
	ErrUnsupportedSchema = errors.New("unsupported schema type")

	// ErrNotRecord reports a top-level schema that is not a record.
	ErrNotRecord = schema.ErrNotRecord

	// ErrNilResource reports a conversion of a nil resource.
	ErrNilResource = errors.New("nil resource")

	// ErrResourceTypeMismatch reports a resource converted with the schema
	// of another resource type.
	ErrResourceTypeMismatch = errors.New("resource type does not match schema")
)

// ConversionError locates a conversion failure.
type ConversionError struct {
	// Location is the indexed path of the failing value,
	// e.g. "Patient.contact[1].telecom[0].rank".
	Location string

	// Schema summarizes the schema being produced.
	Schema string

	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Location, e.Schema, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
