package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSet(t *testing.T) {
	r := New("Patient", []string{"id", "active", TypeTag})

	require.NoError(t, r.Set("id", "p1"))
	v, ok := r.Get("id")
	assert.True(t, ok)
	assert.Equal(t, "p1", v)

	err := r.Set("gender", "male")
	assert.True(t, errors.Is(err, ErrUnknownField))
	assert.False(t, r.Has("gender"))
}

func TestTag(t *testing.T) {
	tests := []struct {
		name    string
		fields  []string
		preset  any
		wantErr error
		want    any
	}{
		{name: "declared and empty", fields: []string{"id", TypeTag}, want: "Patient"},
		{name: "already populated", fields: []string{TypeTag}, preset: "Other", wantErr: ErrTagConflict, want: "Other"},
		{name: "not declared", fields: []string{"id"}, wantErr: ErrUnknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("Patient", tt.fields)
			if tt.preset != nil {
				require.NoError(t, r.Set(TypeTag, tt.preset))
			}

			err := r.Tag()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			got, _ := r.Get(TypeTag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestForceTag(t *testing.T) {
	r := New("Patient", []string{TypeTag})
	require.NoError(t, r.Set(TypeTag, "Other"))

	r.ForceTag()
	got, _ := r.Get(TypeTag)
	assert.Equal(t, "Patient", got)

	untagged := New("HumanName", []string{"family"})
	untagged.ForceTag()
	assert.Equal(t, 0, untagged.Len())
}

func sample(t *testing.T) *Record {
	t.Helper()
	coding := New("Coding", []string{"code", TypeTag})
	require.NoError(t, coding.Set("code", "8867-4"))
	require.NoError(t, coding.Tag())

	r := New("Observation", []string{"status", "coding", "raw", "count", TypeTag})
	require.NoError(t, r.Set("status", "final"))
	require.NoError(t, r.Set("coding", []any{coding, nil}))
	require.NoError(t, r.Set("raw", []byte("abc")))
	require.NoError(t, r.Tag())
	return r
}

func TestToMap(t *testing.T) {
	got := sample(t).ToMap()

	assert.Equal(t, map[string]any{
		"status": "final",
		"coding": []any{
			map[string]any{"code": "8867-4", TypeTag: "Coding"},
			nil,
		},
		"raw":   "abc",
		TypeTag: "Observation",
	}, got)
}

func TestMarshalJSONOrder(t *testing.T) {
	data, err := sample(t).MarshalJSON()
	require.NoError(t, err)

	assert.Equal(t,
		`{"status":"final","coding":[{"code":"8867-4","resourceType":"Coding"},null],"raw":"abc","resourceType":"Observation"}`,
		string(data))
}

func TestMarshalJSONEmpty(t *testing.T) {
	data, err := New("Empty", []string{"a"}).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestMarshalYAML(t *testing.T) {
	data, err := yaml.Marshal(sample(t))
	require.NoError(t, err)

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(data, &doc))
	root := doc.Content[0]

	var keys []string
	for i := 0; i < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}
	assert.Equal(t, []string{"status", "coding", "raw", TypeTag}, keys)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{
		"status": "final",
		"coding": []any{
			map[string]any{"code": "8867-4", TypeTag: "Coding"},
			nil,
		},
		"raw":   "abc",
		TypeTag: "Observation",
	}, got)
}
