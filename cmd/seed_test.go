package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePresets_BuiltIn(t *testing.T) {
	presets, err := parsePresets(defaultPresets)
	require.NoError(t, err)
	require.NotEmpty(t, presets)

	assert.Equal(t, "miss-you", presets[0].ID)
	assert.Equal(t, "Miss you", presets[0].Text)
	assert.Equal(t, 1, presets[0].Order)
	assert.Equal(t, len(presets), presets[len(presets)-1].Order)
}

func TestParsePresets_Invalid(t *testing.T) {
	_, err := parsePresets([]byte("- id: a\n"))
	assert.ErrorContains(t, err, "id and text are required")

	_, err = parsePresets([]byte("- {id: a, text: x}\n- {id: a, text: y}\n"))
	assert.ErrorContains(t, err, "duplicate id")

	_, err = parsePresets([]byte("id: a"))
	assert.Error(t, err)
}

func TestInstanceID(t *testing.T) {
	assert.Equal(t, "api-1", instanceID("api-1"))
	assert.NotEmpty(t, instanceID(""))
}
