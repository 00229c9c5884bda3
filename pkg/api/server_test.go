package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(s *Server, method, path string, body []byte, withAuth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestServer_Health_Unauthenticated(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_AuthRequired_RejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/process_text", []byte(`{"user_id":"a","query":"hi"}`), false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_AuthRequired_RejectsWrongToken(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/process_text", bytes.NewReader([]byte(`{"user_id":"a","query":"hi"}`)))
	req.Header.Set("X-Api-Key", "wrong")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_AuthRequired_EmptyProcessTokenFailsClosed(t *testing.T) {
	s, _ := newTestServerWithToken(t, "")
	w := doRequest(s, http.MethodPost, "/process_text", []byte(`{"user_id":"a","query":"hi"}`), true)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_ProcessText_ReturnsAnswer(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/process_text", []byte(`{"user_id":"alice","query":"hello"}`), true)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "answer")
	assert.NotEmpty(t, body["trace_id"])
}

func TestServer_ProcessText_RejectsMalformedJSON(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/process_text", []byte(`not json`), true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_ChatHistory_RequiresUserID(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/chat_history", nil, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_ChatHistory_ReturnsMessages(t *testing.T) {
	s, _ := newTestServer(t)
	_ = doRequest(s, http.MethodPost, "/process_text", []byte(`{"user_id":"bob","query":"hi"}`), true)

	w := doRequest(s, http.MethodGet, "/chat_history?user_id=bob", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "messages")
}

func TestServer_ClearUserHistory(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/clear_user_history", []byte(`{"user_id":"carl"}`), true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_MemorySearch(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/memory_search", []byte(`{"user_id":"dana","query":"weather"}`), true)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "results")
}

func TestServer_PreloadBoot(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/preload_boot", []byte(`{"user_id":"erin"}`), true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Doctor(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/doctor", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "checks")
}

func TestServer_SecurityAudit_NoFindingsWithDefaultDenyAndNoTools(t *testing.T) {
	s, db := newTestServer(t)
	_ = db
	w := doRequest(s, http.MethodPost, "/security_audit", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Findings []securityFinding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Findings, "DefaultDeny true and no tools registered should produce no findings")
}

type fakeNativeTool struct{ name string }

func (f *fakeNativeTool) Name() string             { return f.name }
func (f *fakeNativeTool) Description() string      { return "fake" }
func (f *fakeNativeTool) ParametersSchema() string { return "{}" }
func (f *fakeNativeTool) Configure(map[string]any) error { return nil }
func (f *fakeNativeTool) Execute(context.Context, map[string]any) (string, error) {
	return "{}", nil
}

func TestServer_SecurityAudit_FlagsNativeToolWithoutOverride(t *testing.T) {
	s, _ := newTestServer(t)
	s.current().Registry().RegisterTool(&fakeNativeTool{name: "unsandboxed"})

	w := doRequest(s, http.MethodPost, "/security_audit", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Findings []securityFinding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	var found bool
	for _, f := range body.Findings {
		if f.Check == "tool_runtime_invariant" && f.Severity == "fail" {
			found = true
		}
	}
	assert.True(t, found, "expected a tool_runtime_invariant fail finding for a non-wasm tool with no override")
}

func TestServer_FactoryResetConfig_WritesDefaults(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/factory_reset_config", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_ReloadConfig_SwapsOrchestrator(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/reload_config", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
}
