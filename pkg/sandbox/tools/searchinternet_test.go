package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchInternetTool_Configure_AppliesDefaults(t *testing.T) {
	tool := NewSearchInternetTool()
	require.NoError(t, tool.Configure(map[string]any{"provider": "perplexity"}))
	assert.Equal(t, "sonar", tool.model)
}

func TestSearchInternetTool_Execute_RejectsEmptyQuery(t *testing.T) {
	tool := NewSearchInternetTool()
	_, err := tool.Execute(context.Background(), map[string]any{"query": "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_args")
}

func TestSearchInternetTool_Execute_DeniesDisallowedDomain(t *testing.T) {
	tool := NewSearchInternetTool()
	require.NoError(t, tool.Configure(map[string]any{
		"provider":      "openai",
		"api_key":       "sk-test",
		"network_allow": []any{"other.example.com"},
		"default_deny":  true,
	}))

	out, err := tool.Execute(context.Background(), map[string]any{"query": "current weather"})
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "error", result["status"])
	assert.Contains(t, result["message"], "Network access denied")
}

func TestSearchInternetTool_Execute_MissingAPIKey(t *testing.T) {
	tool := NewSearchInternetTool()
	require.NoError(t, tool.Configure(map[string]any{"provider": "openai"}))

	out, err := tool.Execute(context.Background(), map[string]any{"query": "current weather"})
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "error", result["status"])
	assert.Equal(t, "API key not configured", result["message"])
}

func TestFormatSources_EmptyReturnsEmptyString(t *testing.T) {
	assert.Equal(t, "", formatSources("Sources", nil))
}

func TestFormatSources_NumbersEntries(t *testing.T) {
	out := formatSources("Sources", []string{"https://a.example", "https://b.example"})
	assert.Contains(t, out, "[1] https://a.example")
	assert.Contains(t, out, "[2] https://b.example")
}
