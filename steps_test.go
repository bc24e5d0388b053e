package mediaforge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSteps_AddAndToMap(t *testing.T) {
	steps := NewSteps()
	steps.Add("encode", "/video/encode", map[string]interface{}{"preset": "web", "width": 1280})
	steps.Add("thumbs", "/video/thumbs", nil)

	out := steps.toMap()
	require.Len(t, out, 2)

	encode, ok := out["encode"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/video/encode", encode["robot"])
	assert.Equal(t, "web", encode["preset"])
	assert.Equal(t, 1280, encode["width"])

	thumbs, ok := out["thumbs"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/video/thumbs", thumbs["robot"])
}

func TestSteps_AddReplacesExisting(t *testing.T) {
	steps := NewSteps()
	steps.Add("encode", "/video/encode", map[string]interface{}{"preset": "web"})
	steps.Add("encode", "/video/encode", map[string]interface{}{"preset": "mobile"})

	out := steps.toMap()
	require.Len(t, out, 1)
	encode := out["encode"].(map[string]interface{})
	assert.Equal(t, "mobile", encode["preset"])
}

func TestSteps_Remove(t *testing.T) {
	steps := NewSteps()
	steps.Add("encode", "/video/encode", nil)
	steps.Add("thumbs", "/video/thumbs", nil)

	steps.Remove("encode")
	assert.Len(t, steps.toMap(), 1)
	assert.False(t, steps.Empty())

	steps.Remove("thumbs")
	assert.True(t, steps.Empty())

	// Removing an unknown step is a no-op.
	steps.Remove("missing")
	assert.True(t, steps.Empty())
}

func TestSteps_Empty(t *testing.T) {
	steps := NewSteps()
	assert.True(t, steps.Empty())

	steps.Add("encode", "/video/encode", nil)
	assert.False(t, steps.Empty())
}
