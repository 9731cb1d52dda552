package interpolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		envVars     map[string]string
		expected    string
		expectError bool
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no references", input: "/var/lib/usercode", expected: "/var/lib/usercode"},
		{
			name:     "single reference",
			input:    "${UC_TEST_DATA}",
			envVars:  map[string]string{"UC_TEST_DATA": "/srv/data"},
			expected: "/srv/data",
		},
		{
			name:     "reference inside a url",
			input:    "http://${UC_TEST_HOST}:${UC_TEST_PORT}/api",
			envVars:  map[string]string{"UC_TEST_HOST": "actions", "UC_TEST_PORT": "4000"},
			expected: "http://actions:4000/api",
		},
		{name: "default used", input: "${UC_TEST_UNSET:/tmp/data}", expected: "/tmp/data"},
		{name: "empty default", input: "x${UC_TEST_UNSET:}y", expected: "xy"},
		{
			name:     "set variable wins over default",
			input:    "${UC_TEST_SECRET:fallback}",
			envVars:  map[string]string{"UC_TEST_SECRET": "s3cr3t"},
			expected: "s3cr3t",
		},
		{
			name:     "default with colons",
			input:    "${UC_TEST_UNSET:http://localhost:3000}",
			expected: "http://localhost:3000",
		},
		{
			name:        "missing without default",
			input:       "${UC_TEST_UNSET}/tasks.db",
			expected:    "${UC_TEST_UNSET}/tasks.db",
			expectError: true,
		},
		{
			name:        "mixed defined and missing",
			input:       "${UC_TEST_DATA}/${UC_TEST_UNSET}",
			envVars:     map[string]string{"UC_TEST_DATA": "a"},
			expected:    "a/${UC_TEST_UNSET}",
			expectError: true,
		},
		{name: "not a reference", input: "$UC_TEST_DATA ${lower} ${1BAD}", expected: "$UC_TEST_DATA ${lower} ${1BAD}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			result, err := ExpandEnvVars(tt.input)
			if tt.expectError {
				require.ErrorIs(t, err, ErrUndefinedVar)
				assert.Contains(t, err.Error(), "UC_TEST_UNSET")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, result)
		})
	}
}
