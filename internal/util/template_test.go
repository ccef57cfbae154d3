package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("You are {{.agent_name}}.", map[string]any{"agent_name": "scribe"})
	require.NoError(t, err)
	assert.Equal(t, "You are scribe.", out)
}

func TestRenderTemplateNoMarkers(t *testing.T) {
	out, err := RenderTemplate("plain instruction text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain instruction text", out)
}

func TestRenderTemplateFuncs(t *testing.T) {
	state := map[string]any{
		"topics": []string{"work", "travel"},
		"name":   "",
	}

	out, err := RenderTemplate(`{{join .topics ", "}} / {{default "anonymous" .name}}`, state)
	require.NoError(t, err)
	assert.Equal(t, "work, travel / anonymous", out)
}

func TestRenderTemplateParseError(t *testing.T) {
	_, err := RenderTemplate("{{.unclosed", nil)
	assert.Error(t, err)
}
