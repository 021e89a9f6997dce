package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type calcArgs struct {
	Expression string   `json:"expression" description:"arithmetic expression"`
	Precision  *int     `json:"precision"`
	Tags       []string `json:"tags,omitempty"`
	hidden     string
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(calcArgs{})

	props := schema["properties"].(map[string]any)
	assert.Len(t, props, 3)
	assert.Equal(t, "string", props["expression"].(map[string]any)["type"])
	assert.Equal(t, "arithmetic expression", props["expression"].(map[string]any)["description"])
	assert.Equal(t, "integer", props["precision"].(map[string]any)["type"])
	assert.Equal(t, "array", props["tags"].(map[string]any)["type"])
	assert.Equal(t, []string{"expression"}, schema["required"])
}

func TestValidateParameters(t *testing.T) {
	tests := []struct {
		name    string
		schema  map[string]any
		params  map[string]any
		wantErr string
	}{
		{
			name:   "required as []string",
			schema: CreateSchema(calcArgs{}),
			params: map[string]any{"expression": "1+1"},
		},
		{
			name:    "missing required from Go schema",
			schema:  CreateSchema(calcArgs{}),
			params:  map[string]any{},
			wantErr: "expression",
		},
		{
			name: "missing required from decoded schema",
			schema: map[string]any{
				"type":     "object",
				"required": []any{"city"},
			},
			params:  map[string]any{"country": "DE"},
			wantErr: "city",
		},
		{
			name:    "wrong type",
			schema:  CreateSchema(calcArgs{}),
			params:  map[string]any{"expression": 12},
			wantErr: "expression",
		},
		{
			name:   "float64 integer accepted",
			schema: CreateSchema(calcArgs{}),
			params: map[string]any{"expression": "x", "precision": float64(2)},
		},
		{
			name:   "extra fields allowed",
			schema: CreateSchema(calcArgs{}),
			params: map[string]any{"expression": "x", "verbose": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.params, tt.schema)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantErr, verr.Field)
		})
	}
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments(`{"expression":"2*3"}`)
	require.NoError(t, err)
	assert.Equal(t, "2*3", args["expression"])

	args, err = ParseArguments("  ")
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = ParseArguments("{not json")
	assert.Error(t, err)
}

type forecastArgs struct {
	City  string `json:"city"`
	Units string `json:"units" enum:"metric,imperial"`
	Days  []struct {
		Offset int `json:"offset"`
	} `json:"days,omitempty"`
}

func TestCreateSchema_EnumAndNested(t *testing.T) {
	schema := CreateSchema(&forecastArgs{})
	props := schema["properties"].(map[string]any)

	assert.Equal(t, []string{"metric", "imperial"}, props["units"].(map[string]any)["enum"])
	days := props["days"].(map[string]any)
	assert.Equal(t, "array", days["type"])
	item := days["items"].(map[string]any)
	assert.Equal(t, "object", item["type"])
	assert.Equal(t, []string{"offset"}, item["required"])
	assert.Equal(t, []string{"city", "units"}, schema["required"])

	err := ValidateParameters(map[string]any{"city": "Berlin", "units": "kelvin"}, schema)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "units", verr.Field)

	require.NoError(t, ValidateParameters(map[string]any{"city": "Berlin", "units": "metric"}, schema))
}
