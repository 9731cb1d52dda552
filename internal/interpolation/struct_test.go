package interpolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	ID      string `toml:"id"`
	BaseURL string `toml:"base_url" env_interpolation:"yes"`
}

type listen struct {
	Addr string `env_interpolation:"yes"`
}

type settings struct {
	DataDir  string            `env_interpolation:"yes"`
	Secret   string            `env_interpolation:"yes"`
	Raw      string            // not tagged
	Skipped  string            `env_interpolation:"no"`
	Servers  []server          `env_interpolation:"yes"`
	Patterns []string          `env_interpolation:"yes"`
	Headers  map[string]string `env_interpolation:"yes"`
	Listen   listen            `env_interpolation:"yes"`
	Extra    *listen           `env_interpolation:"yes"`
	Nested   *listen           `env_interpolation:"yes"`
}

func TestInterpolateStruct(t *testing.T) {
	t.Setenv("UC_TEST_ROOT", "/srv")
	t.Setenv("UC_TEST_HOST", "remote")

	s := &settings{
		DataDir:  "${UC_TEST_ROOT}/data",
		Secret:   "${UC_TEST_MISSING_SECRET:dev}",
		Raw:      "${UC_TEST_ROOT}",
		Skipped:  "${UC_TEST_ROOT}",
		Servers:  []server{{ID: "${UC_TEST_ROOT}", BaseURL: "http://${UC_TEST_HOST}:3000"}},
		Patterns: []string{"*_${UC_TEST_HOST}", ""},
		Headers:  map[string]string{"host": "${UC_TEST_HOST}"},
		Listen:   listen{Addr: "${UC_TEST_HOST}:4000"},
		Extra:    &listen{Addr: "${UC_TEST_ROOT}"},
	}
	require.NoError(t, InterpolateStruct(s))

	assert.Equal(t, "/srv/data", s.DataDir)
	assert.Equal(t, "dev", s.Secret)
	assert.Equal(t, "${UC_TEST_ROOT}", s.Raw)
	assert.Equal(t, "${UC_TEST_ROOT}", s.Skipped)
	assert.Equal(t, "${UC_TEST_ROOT}", s.Servers[0].ID, "untagged nested fields are kept")
	assert.Equal(t, "http://remote:3000", s.Servers[0].BaseURL)
	assert.Equal(t, []string{"*_remote", ""}, s.Patterns)
	assert.Equal(t, "remote", s.Headers["host"])
	assert.Equal(t, "remote:4000", s.Listen.Addr)
	assert.Equal(t, "/srv", s.Extra.Addr)
	assert.Nil(t, s.Nested)
}

func TestInterpolateStruct_Errors(t *testing.T) {
	t.Parallel()

	s := &settings{
		DataDir: "${UC_TEST_MISSING_A}",
		Servers: []server{{BaseURL: "${UC_TEST_MISSING_B}"}},
	}
	err := InterpolateStruct(s)
	require.ErrorIs(t, err, ErrUndefinedVar)
	assert.Contains(t, err.Error(), "field DataDir")
	assert.Contains(t, err.Error(), "field Servers[0]: field BaseURL")
	assert.Contains(t, err.Error(), "UC_TEST_MISSING_B")
}

func TestInterpolateStruct_Arguments(t *testing.T) {
	t.Parallel()

	require.NoError(t, InterpolateStruct(nil))
	require.NoError(t, InterpolateStruct((*settings)(nil)))
	require.Error(t, InterpolateStruct(settings{}))

	n := 3
	require.Error(t, InterpolateStruct(&n))
}
