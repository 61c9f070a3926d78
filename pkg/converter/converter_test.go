package converter

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gofhir/fhir/r4"
	"github.com/hamba/avro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/fhiravro"
	"github.com/gofhir/fhiravro/pkg/element"
	"github.com/gofhir/fhiravro/pkg/logger"
	"github.com/gofhir/fhiravro/pkg/primitive"
	"github.com/gofhir/fhiravro/pkg/record"
	"github.com/gofhir/fhiravro/pkg/schema"
)

const patientSchema = `{
  "type": "record",
  "name": "Patient",
  "fields": [
    {"name": "resourceType", "type": ["null", "string"]},
    {"name": "id", "type": ["null", "string"]},
    {"name": "active", "type": ["null", "boolean"]},
    {"name": "gender", "type": ["null", {"type": "enum", "name": "Gender", "symbols": ["male", "female", "other", "unknown"]}]},
    {"name": "birthDate", "type": ["null", {"type": "int", "logicalType": "date"}, "string"]},
    {"name": "text", "type": ["null", {"type": "record", "name": "Narrative", "fields": [
      {"name": "resourceType", "type": ["null", "string"]},
      {"name": "status", "type": ["null", "string"]},
      {"name": "div", "type": ["null", "string"]}
    ]}]},
    {"name": "name", "type": ["null", {"type": "array", "items": {"type": "record", "name": "HumanName", "fields": [
      {"name": "resourceType", "type": ["null", "string"]},
      {"name": "family", "type": ["null", "string"]},
      {"name": "given", "type": ["null", {"type": "array", "items": "string"}]}
    ]}}]},
    {"name": "contact", "type": ["null", {"type": "array", "items": {"type": "record", "name": "Contact", "fields": [
      {"name": "resourceType", "type": ["null", "string"]},
      {"name": "name", "type": ["null", "HumanName"]},
      {"name": "telecom", "type": ["null", {"type": "array", "items": {"type": "record", "name": "ContactPoint", "fields": [
        {"name": "resourceType", "type": ["null", "string"]},
        {"name": "system", "type": ["null", "string"]},
        {"name": "value", "type": ["null", "string"]},
        {"name": "rank", "type": ["null", "int"]}
      ]}}]}
    ]}}]}
  ]
}`

const patientJSON = `{
  "resourceType": "Patient",
  "id": "example",
  "active": true,
  "gender": "male",
  "birthDate": "1974-12-25",
  "text": {"status": "generated", "div": "<div>Peter James Chalmers</div>"},
  "name": [
    {"family": "Chalmers", "given": ["Peter", "James"]},
    {"family": "Windsor", "given": ["Jim"]}
  ],
  "contact": [
    {"name": {"family": "du Marché"}, "telecom": [{"system": "phone", "value": "+33 1", "rank": 1}, {"system": "email", "value": "a@b"}]},
    {"telecom": [{"system": "phone", "value": "+33 2", "rank": 2}]}
  ]
}`

func mustSchema(t *testing.T, text string) avro.Schema {
	t.Helper()
	s, err := schema.Parse(text)
	require.NoError(t, err)
	return s
}

func mustParse(t *testing.T, data string) element.Element {
	t.Helper()
	n, err := element.Parse([]byte(data))
	require.NoError(t, err)
	return n
}

func quiet() Option {
	var buf bytes.Buffer
	return WithLogger(logger.New(&buf, logger.LevelError))
}

func TestConvertPatient(t *testing.T) {
	c := New(quiet())

	rec, err := c.Convert(mustParse(t, patientJSON), mustSchema(t, patientSchema))
	require.NoError(t, err)

	got := rec.ToMap()
	assert.Equal(t, "Patient", got["resourceType"])
	assert.Equal(t, "example", got["id"])
	assert.Equal(t, true, got["active"])
	assert.Equal(t, "male", got["gender"])
	assert.Equal(t, int32(1819), got["birthDate"])

	assert.Equal(t, map[string]any{
		"resourceType": "Narrative",
		"status":       "generated",
		"div":          "<div>Peter James Chalmers</div>",
	}, got["text"])

	assert.Equal(t, []any{
		map[string]any{"resourceType": "HumanName", "family": "Chalmers", "given": []any{"Peter", "James"}},
		map[string]any{"resourceType": "HumanName", "family": "Windsor", "given": []any{"Jim"}},
	}, got["name"])

	assert.Equal(t, []any{
		map[string]any{
			"resourceType": "Contact",
			"name":         map[string]any{"resourceType": "HumanName", "family": "du Marché"},
			"telecom": []any{
				map[string]any{"resourceType": "ContactPoint", "system": "phone", "value": "+33 1", "rank": int32(1)},
				map[string]any{"resourceType": "ContactPoint", "system": "email", "value": "a@b"},
			},
		},
		map[string]any{
			"resourceType": "Contact",
			"telecom": []any{
				map[string]any{"resourceType": "ContactPoint", "system": "phone", "value": "+33 2", "rank": int32(2)},
			},
		},
	}, got["contact"])
}

func TestConvertIsIdempotent(t *testing.T) {
	c := New(quiet())
	s := mustSchema(t, patientSchema)
	resource := mustParse(t, patientJSON)

	first, err := c.Convert(resource, s)
	require.NoError(t, err)
	second, err := c.Convert(resource, s)
	require.NoError(t, err)

	assert.Equal(t, first.ToMap(), second.ToMap())
}

func TestEndToEnd(t *testing.T) {
	s := mustSchema(t, `{
	  "type": "record",
	  "name": "Tagged",
	  "fields": [
	    {"name": "name", "type": "string"},
	    {"name": "tags", "type": {"type": "array", "items": "string"}},
	    {"name": "resourceType", "type": ["null", "string"]}
	  ]
	}`)
	resource := element.FromMap(map[string]any{"name": "X", "tags": []any{"a", "b"}})

	rec, err := New(quiet()).Convert(resource, s)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"name":         "X",
		"tags":         []any{"a", "b"},
		"resourceType": "Tagged",
	}, rec.ToMap())
}

func TestArrayOrderPreserved(t *testing.T) {
	s := mustSchema(t, `{"type":"record","name":"R","fields":[
	  {"name":"items","type":{"type":"array","items":"string"}}
	]}`)
	resource := element.FromMap(map[string]any{"items": []any{"c", "a", "b"}})

	rec, err := New(quiet()).Convert(resource, s)
	require.NoError(t, err)

	got, _ := rec.Get("items")
	assert.Equal(t, []any{"c", "a", "b"}, got)
}

func TestUnionFirstMatchWins(t *testing.T) {
	tests := []struct {
		name     string
		branches string
		value    any
		want     any
		rejected uint64
	}{
		{name: "int rejected then string", branches: `["int", "string"]`, value: "abc", want: "abc", rejected: 1},
		{name: "string wins over int", branches: `["string", "int"]`, value: "abc", want: "abc"},
		{name: "int wins over string", branches: `["int", "string"]`, value: "42", want: int32(42)},
		{name: "string wins over int for numbers", branches: `["string", "int"]`, value: "42", want: "42"},
		{name: "null never wins", branches: `["null", "long"]`, value: "7", want: int64(7)},
		{name: "all rejected", branches: `["null", "int", "boolean"]`, value: "abc", want: nil, rejected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustSchema(t, `{"type":"record","name":"R","fields":[{"name":"v","type":`+tt.branches+`}]}`)
			m := fhiravro.NewMetrics()

			rec, err := New(quiet(), WithMetrics(m)).Convert(element.FromMap(map[string]any{"v": tt.value}), s)
			require.NoError(t, err)

			got, ok := rec.Get("v")
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rejected, m.BranchesRejected())
		})
	}
}

func TestUnionFirstSourceValueWins(t *testing.T) {
	s := mustSchema(t, `{"type":"record","name":"R","fields":[
	  {"name":"name","type":["null",{"type":"record","name":"HumanName","fields":[
	    {"name":"family","type":["null","string"]}
	  ]}]}
	]}`)
	resource := mustParse(t, `{"resourceType":"R","name":[{"family":"First"},{"family":"Second"}]}`)

	rec, err := New(quiet()).Convert(resource, s)
	require.NoError(t, err)

	name, ok := rec.Get("name")
	require.True(t, ok)
	family, _ := name.(*record.Record).Get("family")
	assert.Equal(t, "First", family)
}

func TestRejectedBranchRestoresTracker(t *testing.T) {
	s := mustSchema(t, `{"type":"record","name":"R","fields":[
	  {"name":"contact","type":[
	    {"type":"record","name":"StrictContact","fields":[
	      {"name":"telecom","type":{"type":"array","items":{"type":"record","name":"RankedPoint","fields":[
	        {"name":"rank","type":"int"}
	      ]}}}
	    ]},
	    {"type":"record","name":"LooseContact","fields":[
	      {"name":"telecom","type":{"type":"array","items":{"type":"record","name":"LabelledPoint","fields":[
	        {"name":"rank","type":"string"}
	      ]}}}
	    ]}
	  ]}
	]}`)
	resource := mustParse(t, `{"resourceType":"R","contact":{"telecom":[{"rank":1},{"rank":"x"}]}}`)
	m := fhiravro.NewMetrics()

	rec, err := New(quiet(), WithMetrics(m)).Convert(resource, s)
	require.NoError(t, err)

	contact, ok := rec.Get("contact")
	require.True(t, ok)
	assert.Equal(t, "LooseContact", contact.(*record.Record).Name())
	assert.Equal(t, map[string]any{
		"telecom": []any{map[string]any{"rank": "1"}, map[string]any{"rank": "x"}},
	}, contact.(*record.Record).ToMap())
	assert.Equal(t, uint64(1), m.BranchesRejected())
	assert.Zero(t, m.TrackerMismatches(), "the second branch starts from the first telecom")
}

const observationSchema = `{
  "type": "record",
  "name": "Observation",
  "fields": [
    {"name": "resourceType", "type": ["null", "string"]},
    {"name": "valueBoolean", "type": ["null", "boolean"]},
    {"name": "valueInteger", "type": ["null", "int"]},
    {"name": "valueQuantity", "type": ["null", {"type": "record", "name": "Quantity", "fields": [
      {"name": "value", "type": ["null", "double"]},
      {"name": "unit", "type": ["null", "string"]}
    ]}]},
    {"name": "valueDateTime", "type": ["null", "long"]}
  ]
}`

func TestValueChoiceMatch(t *testing.T) {
	s := mustSchema(t, observationSchema)

	tests := []struct {
		name  string
		json  string
		field string
		want  any
	}{
		{name: "boolean", json: `{"resourceType":"Observation","valueBoolean":false}`, field: "valueBoolean", want: false},
		{name: "integer", json: `{"resourceType":"Observation","valueInteger":3}`, field: "valueInteger", want: int32(3)},
		{name: "quantity", json: `{"resourceType":"Observation","valueQuantity":{"value":72.5,"unit":"kg"}}`, field: "valueQuantity",
			want: map[string]any{"value": 72.5, "unit": "kg"}},
		{name: "dateTime formatted", json: `{"resourceType":"Observation","valueDateTime":"1970-01-01T00:00:02Z"}`, field: "valueDateTime", want: int64(2000)},
	}

	choices := []string{"valueBoolean", "valueInteger", "valueQuantity", "valueDateTime"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := New(quiet()).Convert(mustParse(t, tt.json), s)
			require.NoError(t, err)

			got := rec.ToMap()
			assert.Equal(t, tt.want, got[tt.field])
			for _, other := range choices {
				if other == tt.field {
					continue
				}
				assert.False(t, rec.Has(other), "%s should stay unset", other)
			}
		})
	}
}

func TestPathScopedArrayPairing(t *testing.T) {
	s := mustSchema(t, `{"type":"record","name":"Root","fields":[
	  {"name":"g1","type":{"type":"array","items":{"type":"record","name":"Group","fields":[
	    {"name":"items","type":{"type":"array","items":{"type":"record","name":"Item","fields":[{"name":"v","type":"string"}]}}}
	  ]}}},
	  {"name":"g2","type":{"type":"array","items":"Group"}}
	]}`)
	resource := mustParse(t, `{
	  "g1": [{"items": [{"v": "x1"}]}, {"items": [{"v": "x2a"}, {"v": "x2b"}]}],
	  "g2": [{"items": [{"v": "y1"}]}, {"items": [{"v": "y2"}]}]
	}`)
	m := fhiravro.NewMetrics()

	rec, err := New(quiet(), WithMetrics(m)).Convert(resource, s)
	require.NoError(t, err)

	values := func(field string) [][]string {
		var out [][]string
		groups, _ := rec.Get(field)
		for _, g := range groups.([]any) {
			items, _ := g.(*record.Record).Get("items")
			var vs []string
			for _, it := range items.([]any) {
				v, _ := it.(*record.Record).Get("v")
				vs = append(vs, v.(string))
			}
			out = append(out, vs)
		}
		return out
	}

	assert.Equal(t, [][]string{{"x1"}, {"x2a", "x2b"}}, values("g1"))
	assert.Equal(t, [][]string{{"y1"}, {"y2"}}, values("g2"))
	assert.Zero(t, m.TrackerMismatches(), "tracked elements should match resolved elements")
}

type shiftingNavigator struct{}

// Values returns the elements in reverse order so every tracked element
// after the first differs from the resolved one.
func (shiftingNavigator) Values(from element.Element, path string) []element.Element {
	vs := element.Navigate(from, path)
	out := make([]element.Element, len(vs))
	for i, v := range vs {
		out[len(vs)-1-i] = v
	}
	return out
}

func TestTrackerMismatchUsesResolvedElement(t *testing.T) {
	m := fhiravro.NewMetrics()
	c := New(quiet(), WithMetrics(m), WithNavigator(shiftingNavigator{}))

	rec, err := c.Convert(mustParse(t, patientJSON), mustSchema(t, patientSchema))
	require.NoError(t, err)

	names, _ := rec.Get("name")
	first, _ := names.([]any)[0].(*record.Record).Get("family")
	assert.Equal(t, "Chalmers", first)
	assert.Positive(t, m.TrackerMismatches())
}

func TestGracefulAbsence(t *testing.T) {
	rec, err := New(quiet()).Convert(mustParse(t, `{"resourceType":"Patient","id":"x"}`), mustSchema(t, patientSchema))
	require.NoError(t, err)

	for _, f := range []string{"active", "gender", "birthDate", "text", "name", "contact"} {
		assert.False(t, rec.Has(f), f)
	}
	assert.Equal(t, map[string]any{"resourceType": "Patient", "id": "x"}, rec.ToMap())
}

func TestEmptyPrimitiveYieldsNil(t *testing.T) {
	s := mustSchema(t, `{"type":"record","name":"R","fields":[{"name":"v","type":"int"}]}`)
	resource := mustParse(t, `{"_v": {"id": "only-metadata"}}`)

	rec, err := New(quiet()).Convert(resource, s)
	require.NoError(t, err)

	v, ok := rec.Get("v")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestPrimitiveCoercion(t *testing.T) {
	tests := []struct {
		typ     string
		raw     any
		want    any
		wantErr bool
	}{
		{typ: `"int"`, raw: "12", want: int32(12)},
		{typ: `"int"`, raw: "3000000000", wantErr: true},
		{typ: `"long"`, raw: "3000000000", want: int64(3000000000)},
		{typ: `"float"`, raw: "1.5", want: float32(1.5)},
		{typ: `"double"`, raw: "2.25", want: 2.25},
		{typ: `"double"`, raw: "abc", wantErr: true},
		{typ: `"boolean"`, raw: "TRUE", want: true},
		{typ: `"boolean"`, raw: "false", want: false},
		{typ: `"boolean"`, raw: "yes", wantErr: true},
		{typ: `"bytes"`, raw: "héllo", want: []byte("héllo")},
		{typ: `"string"`, raw: "2020-01-01", want: "18262"},
		{typ: `{"type":"enum","name":"E","symbols":["a","b"]}`, raw: "a", want: "a"},
		{typ: `"null"`, raw: "anything", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.raw.(string), func(t *testing.T) {
			s := mustSchema(t, `{"type":"record","name":"R","fields":[{"name":"v","type":`+tt.typ+`}]}`)

			rec, err := New(quiet()).Convert(element.FromMap(map[string]any{"v": tt.raw}), s)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBranchRejected)
				assert.Nil(t, rec)
				return
			}
			require.NoError(t, err)
			got, _ := rec.Get("v")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCustomFormatters(t *testing.T) {
	s := mustSchema(t, `{"type":"record","name":"R","fields":[{"name":"d","type":"string"}]}`)
	resource := element.FromMap(map[string]any{"d": "2020-01-01"})

	rec, err := New(quiet(), WithFormatters()).Convert(resource, s)
	require.NoError(t, err)
	got, _ := rec.Get("d")
	assert.Equal(t, "2020-01-01", got, "no formatters leaves values untouched")

	label := primitive.New(`\d{4}-\d{2}-\d{2}`, func(string) string { return "a date" })
	rec, err = New(quiet(), WithFormatters(label)).Convert(resource, s)
	require.NoError(t, err)
	got, _ = rec.Get("d")
	assert.Equal(t, "a date", got)
}

func TestRejectionOutsideUnionFails(t *testing.T) {
	s := mustSchema(t, `{"type":"record","name":"Patient","fields":[
	  {"name":"contact","type":{"type":"array","items":{"type":"record","name":"Contact","fields":[
	    {"name":"telecom","type":{"type":"array","items":{"type":"record","name":"ContactPoint","fields":[
	      {"name":"rank","type":"int"}
	    ]}}}
	  ]}}}
	]}`)
	resource := mustParse(t, `{"resourceType":"Patient","contact":[
	  {"telecom":[{"rank":1},{"rank":2}]},
	  {"telecom":[{"rank":"first"}]}
	]}`)

	rec, err := New(quiet()).Convert(resource, s)
	require.Error(t, err)
	assert.Nil(t, rec, "a failed conversion returns no partial record")
	assert.ErrorIs(t, err, ErrBranchRejected)

	var ce *ConversionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Patient.contact[1].telecom[0].rank", ce.Location)
	assert.Equal(t, "int", ce.Schema)
	assert.Contains(t, err.Error(), `"first"`)
}

func TestUnsupportedSchema(t *testing.T) {
	tests := []struct {
		name string
		typ  string
	}{
		{name: "map", typ: `{"type":"map","values":"string"}`},
		{name: "fixed", typ: `{"type":"fixed","name":"F","size":2}`},
		{name: "map inside union", typ: `["null", {"type":"map","values":"string"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustSchema(t, `{"type":"record","name":"R","fields":[{"name":"v","type":`+tt.typ+`}]}`)

			rec, err := New(quiet()).Convert(element.FromMap(map[string]any{"v": "ab"}), s)
			assert.ErrorIs(t, err, ErrUnsupportedSchema)
			assert.Nil(t, rec)
		})
	}
}

func TestConvertRejectsBadInput(t *testing.T) {
	c := New(quiet())

	_, err := c.Convert(mustParse(t, `{}`), mustSchema(t, `"string"`))
	assert.ErrorIs(t, err, ErrNotRecord)

	_, err = c.Convert(nil, mustSchema(t, patientSchema))
	assert.ErrorIs(t, err, ErrNilResource)

	_, err = c.ConvertJSON(context.Background(), []byte(`not json`), mustSchema(t, patientSchema))
	assert.Error(t, err)
}

func TestConvertCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(quiet()).ConvertJSON(ctx, []byte(patientJSON), mustSchema(t, patientSchema))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = New(quiet()).ConvertContext(ctx, mustParse(t, patientJSON), mustSchema(t, patientSchema))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTypeTag(t *testing.T) {
	s := mustSchema(t, `{"type":"record","name":"Wrapper","fields":[
	  {"name":"resourceType","type":["null","string"]},
	  {"name":"inner","type":{"type":"record","name":"Inner","fields":[
	    {"name":"resourceType","type":["null","string"]},
	    {"name":"x","type":"string"}
	  ]}},
	  {"name":"plain","type":{"type":"record","name":"Plain","fields":[{"name":"x","type":"string"}]}}
	]}`)
	resource := mustParse(t, `{"resourceType":"Other","inner":{"resourceType":"FromSource","x":"1"},"plain":{"x":"2"}}`)

	rec, err := New(quiet()).Convert(resource, s)
	require.NoError(t, err)

	got := rec.ToMap()
	assert.Equal(t, "Wrapper", got["resourceType"], "the root record always carries the schema name")
	assert.Equal(t, map[string]any{"resourceType": "Inner", "x": "1"}, got["inner"])
	assert.Equal(t, map[string]any{"x": "2"}, got["plain"], "records without the tag field stay untagged")
}

func TestRecordedDateExtension(t *testing.T) {
	s := mustSchema(t, `{"type":"record","name":"Condition","fields":[
	  {"name":"resourceType","type":["null","string"]},
	  {"name":"extension","type":["null",{"type":"array","items":{"type":"record","name":"Extension","fields":[
	    {"name":"url","type":["null","string"]},
	    {"name":"valueCode","type":["null","string"]}
	  ]}}]},
	  {"name":"recordedDate","type":["null","long","string"]},
	  {"name":"_recordedDate","type":["null",{"type":"array","items":"Extension"}]}
	]}`)
	resource := mustParse(t, `{
	  "resourceType": "Condition",
	  "_recordedDate": {"extension": [{"url": "http://hl7.org/fhir/StructureDefinition/data-absent-reason", "valueCode": "unknown"}]}
	}`)

	rec, err := New(quiet()).Convert(resource, s)
	require.NoError(t, err)

	got := rec.ToMap()
	assert.Equal(t, []any{
		map[string]any{"url": "http://hl7.org/fhir/StructureDefinition/data-absent-reason", "valueCode": "unknown"},
	}, got["_recordedDate"])
	assert.Nil(t, got["recordedDate"])
}

func TestConvertModel(t *testing.T) {
	s := mustSchema(t, `{"type":"record","name":"Patient","fields":[
	  {"name":"id","type":["null","string"]},
	  {"name":"active","type":["null","boolean"]},
	  {"name":"name","type":["null",{"type":"array","items":{"type":"record","name":"HumanName","fields":[
	    {"name":"family","type":["null","string"]},
	    {"name":"given","type":["null",{"type":"array","items":"string"}]}
	  ]}}]}
	]}`)
	id, active, family := "p1", true, "Chalmers"
	model := &r4.Patient{
		Id:     &id,
		Active: &active,
		Name:   []r4.HumanName{{Family: &family, Given: []string{"Peter", "James"}}},
	}

	rec, err := New(quiet()).ConvertModel(context.Background(), model, s)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"id":     id,
		"active": true,
		"name":   []any{map[string]any{"family": family, "given": []any{"Peter", "James"}}},
	}, rec.ToMap())
}

func TestResourceTypeMismatch(t *testing.T) {
	c := New(quiet())
	observation := mustSchema(t, observationSchema)

	_, err := c.ConvertModel(context.Background(), &r4.Patient{}, observation)
	assert.ErrorIs(t, err, ErrResourceTypeMismatch)

	_, err = c.ConvertModel(context.Background(), nil, observation)
	assert.ErrorIs(t, err, ErrNilResource)

	_, err = c.ConvertJSON(context.Background(), []byte(patientJSON), observation)
	assert.ErrorIs(t, err, ErrResourceTypeMismatch)

	// Schemas and types outside R4 are not checked.
	rec, err := c.Convert(mustParse(t, `{"resourceType":"Patient","valueBoolean":true}`),
		mustSchema(t, `{"type":"record","name":"Vitals","fields":[{"name":"valueBoolean","type":["null","boolean"]}]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"valueBoolean": true}, rec.ToMap())
}

func TestMetricsRecorded(t *testing.T) {
	m := fhiravro.NewMetrics()
	c := New(quiet(), WithMetrics(m))
	s := mustSchema(t, patientSchema)

	_, err := c.Convert(mustParse(t, patientJSON), s)
	require.NoError(t, err)
	_, err = c.Convert(mustParse(t, `{"resourceType":"Patient","active":"maybe"}`), mustSchema(t,
		`{"type":"record","name":"Patient","fields":[{"name":"active","type":"boolean"}]}`))
	require.Error(t, err)

	assert.Same(t, m, c.Metrics())
	assert.Equal(t, uint64(2), m.ConversionsTotal())
	assert.Equal(t, uint64(1), m.ConversionsFailed())
	assert.Positive(t, m.RecordsBuilt())

	ps, ok := m.SchemaStats("Patient")
	require.True(t, ok)
	assert.Equal(t, uint64(2), ps.Conversions)
}

func TestConcurrentConversions(t *testing.T) {
	c := New(quiet())
	s := mustSchema(t, patientSchema)
	resource := mustParse(t, patientJSON)

	want, err := c.Convert(resource, s)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Convert(resource, s)
			assert.NoError(t, err)
			assert.Equal(t, want.ToMap(), got.ToMap())
		}()
	}
	wg.Wait()
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	c := New(WithLogger(logger.New(&buf, logger.LevelDebug)))
	s := mustSchema(t, `{"type":"record","name":"Condition","fields":[
	  {"name":"_recordedDate","type":["null","string"]},
	  {"name":"v","type":["int","string"]}
	]}`)

	_, err := c.Convert(element.FromMap(map[string]any{"v": "abc"}), s)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "element metadata field")
	assert.Contains(t, out, "_recordedDate")
	assert.Contains(t, out, "union branch rejected")
}
