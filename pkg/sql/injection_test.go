package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckParameterForInjection(t *testing.T) {
	tests := []struct {
		name            string
		value           any
		expectInjection bool
	}{
		{name: "account id", value: "12345"},
		{name: "email", value: "user@example.com"},
		{name: "date", value: "2024-01-15"},
		{name: "uuid", value: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "integer", value: 100},
		{name: "boolean", value: true},
		{name: "nil", value: nil},
		{name: "clean list", value: []any{"running", "stopped"}},
		{name: "tautology", value: "' OR '1'='1", expectInjection: true},
		{name: "stacked drop", value: "'; DROP TABLE users--", expectInjection: true},
		{name: "union select", value: "1 UNION SELECT * FROM passwords", expectInjection: true},
		{name: "comment terminator", value: "admin'--", expectInjection: true},
		{name: "list element", value: []any{"ok", "' OR 1=1--"}, expectInjection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckParameterForInjection("p", tt.value)
			if !tt.expectInjection {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.Equal(t, "p", result.ParamName)
			assert.Equal(t, tt.value, result.ParamValue)
			assert.NotEmpty(t, result.Fingerprint)
		})
	}
}

func TestCheckAllParameters(t *testing.T) {
	results := CheckAllParameters(map[string]any{
		"b_search": "'; DROP TABLE users--",
		"limit":    100,
		"a_filter": "' OR '1'='1",
		"region":   "eastus",
	})

	require.Len(t, results, 2)
	assert.Equal(t, "a_filter", results[0].ParamName)
	assert.Equal(t, "b_search", results[1].ParamName)
}
