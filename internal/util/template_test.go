package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate_NoMarkers(t *testing.T) {
	out, err := RenderTemplate("plain <text>", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain <text>", out)
}

func TestRenderTemplate_DoesNotEscape(t *testing.T) {
	out, err := RenderTemplate("User says: {{.Input}}", map[string]any{"Input": `a < b & "c"`})
	require.NoError(t, err)
	assert.Equal(t, `User says: a < b & "c"`, out)
}

func TestRenderTemplate_Funcs(t *testing.T) {
	out, err := RenderTemplate(`{{upper .Role}} {{default "none" .Memory}}`, map[string]any{"Role": "writer"})
	require.NoError(t, err)
	assert.Equal(t, "WRITER none", out)
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{.Input", nil)
	assert.Error(t, err)
	assert.Panics(t, func() { MustParse("{{if}}") })
}
