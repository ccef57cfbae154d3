package util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSchema(t *testing.T) {
	type params struct {
		Query    string   `json:"query" description:"search terms"`
		Limit    int      `json:"limit,omitempty"`
		Tags     []string `json:"tags,omitempty"`
		Verbose  *bool    `json:"verbose,omitempty"`
		internal string   //nolint:unused
	}

	schema := CreateSchema(params{})

	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	query, ok := props["query"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "search terms", query["description"])

	limit, ok := props["limit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "integer", limit["type"])

	tags, ok := props["tags"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", tags["type"])

	_, hasInternal := props["internal"]
	assert.False(t, hasInternal, "unexported fields must not appear")

	assert.Equal(t, []string{"query"}, schema["required"])
}

func TestCreateSchemaNonStruct(t *testing.T) {
	schema := CreateSchema("not a struct")
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer"},
			"tags":  map[string]any{"type": "array"},
		},
		"required": []string{"query"},
	}

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{
			name: "valid",
			args: map[string]any{"query": "meeting notes", "limit": 5},
		},
		{
			name:    "missing required",
			args:    map[string]any{"limit": 5},
			wantErr: "required field is missing",
		},
		{
			name:    "wrong type",
			args:    map[string]any{"query": 42},
			wantErr: "expected type string",
		},
		{
			name: "json numbers accepted as integers",
			args: map[string]any{"query": "x", "limit": float64(3)},
		},
		{
			name:    "fractional number rejected as integer",
			args:    map[string]any{"query": "x", "limit": 3.5},
			wantErr: "expected type integer",
		},
		{
			name: "unknown fields allowed",
			args: map[string]any{"query": "x", "extra": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.args, schema)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateParametersDecodedSchema(t *testing.T) {
	// Schemas decoded from JSON carry []any for "required".
	raw := `{"type":"object","properties":{"title":{"type":"string"}},"required":["title"]}`
	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &schema))

	err := ValidateParameters(map[string]any{}, schema)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
}
