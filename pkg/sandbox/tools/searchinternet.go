// Package tools holds native (non-WASM) sandbox.Tool implementations.
// Every tool here must be explicitly opted out of the wasm default via
// sandbox.Policy's NativeOverride, and enforces its own domain
// allowlist using sandbox.IsDomainAllowed since the sandbox's network
// policy is implemented inside tool bodies, not by the host.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/sandbox"
)

// SearchInternetTool performs a web search via an OpenAI- or
// Perplexity-compatible chat completions endpoint, grounded in
// original_source/src/tools/search_internet.rs's search_openai/
// search_perplexity flow (payload shape, citation trimming).
type SearchInternetTool struct {
	httpClient *http.Client

	apiKey      string
	provider    string
	model       string
	citations   bool
	networkAllow []string
	defaultDeny  bool
}

var _ sandbox.Tool = (*SearchInternetTool)(nil)

// NewSearchInternetTool constructs the tool with sane defaults;
// Configure supplies real settings from the sandbox config tree.
func NewSearchInternetTool() *SearchInternetTool {
	return &SearchInternetTool{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		provider:   "openai",
		citations:  true,
	}
}

func (t *SearchInternetTool) Name() string        { return "search_internet" }
func (t *SearchInternetTool) Description() string  { return "Searches the internet for current information and returns a summarized answer with sources." }
func (t *SearchInternetTool) ParametersSchema() string {
	return `{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`
}

// Configure reads provider/model/api_key/citations and
// network_allow/default_deny from the tool's own config block (the daemon
// fills the latter two from the sandbox section's network settings).
func (t *SearchInternetTool) Configure(cfg map[string]any) error {
	if cfg == nil {
		return nil
	}
	if v, ok := cfg["provider"].(string); ok && v != "" {
		t.provider = v
	}
	if v, ok := cfg["model"].(string); ok && v != "" {
		t.model = v
	}
	if v, ok := cfg["api_key"].(string); ok {
		t.apiKey = v
	}
	if v, ok := cfg["citations"].(bool); ok {
		t.citations = v
	}
	if v, ok := cfg["default_deny"].(bool); ok {
		t.defaultDeny = v
	}
	if raw, ok := cfg["network_allow"].([]any); ok {
		allow := make([]string, 0, len(raw))
		for _, entry := range raw {
			if s, ok := entry.(string); ok {
				allow = append(allow, s)
			}
		}
		t.networkAllow = allow
	}
	if t.model == "" {
		t.model = defaultModelFor(t.provider)
	}
	return nil
}

func defaultModelFor(provider string) string {
	switch provider {
	case "perplexity":
		return "sonar"
	case "openai":
		return "gpt-4o-mini-search-preview"
	default:
		return ""
	}
}

// Execute issues the search request and returns a JSON string
// {status, result, model_used} or {status:"error", message}.
func (t *SearchInternetTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	query, _ := params["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("invalid_args: query is required")
	}

	endpoint, domain := t.endpoint()
	if !sandbox.IsDomainAllowed(domain, t.networkAllow, t.defaultDeny) {
		return marshalResult(map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Network access denied for %s", domain),
		}), nil
	}
	if strings.TrimSpace(t.apiKey) == "" {
		return marshalResult(map[string]any{
			"status":  "error",
			"message": "API key not configured",
		}), nil
	}

	systemContent := "You search the Internet for current information."
	if t.citations {
		systemContent += " Include detailed information with citations like [1], [2], etc."
	} else {
		systemContent += " Provide a comprehensive answer without citations or source references."
	}

	payload := map[string]any{
		"model": t.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemContent},
			{"role": "user", "content": query},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal search_internet request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build search_internet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return marshalResult(map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("%s API error", t.provider),
			"details": err.Error(),
		}), nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return marshalResult(map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Failed to search: %d", resp.StatusCode),
			"details": string(respBody),
		}), nil
	}

	content, citationURLs := parseChatCompletion(respBody)
	if t.citations {
		if idx := strings.Index(content, "Sources:"); idx >= 0 {
			content = strings.TrimSpace(content[:idx])
		}
		content += formatSources("**Sources:**", citationURLs)
	}

	return marshalResult(map[string]any{
		"status":     "success",
		"result":     content,
		"model_used": t.model,
	}), nil
}

func (t *SearchInternetTool) endpoint() (url, domain string) {
	switch t.provider {
	case "perplexity":
		return "https://api.perplexity.ai/chat/completions", "api.perplexity.ai"
	default:
		return "https://api.openai.com/v1/chat/completions", "api.openai.com"
	}
}

func parseChatCompletion(body []byte) (content string, citations []string) {
	var data struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Citations []any `json:"citations"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", nil
	}
	if len(data.Choices) > 0 {
		content = data.Choices[0].Message.Content
	}
	for _, c := range data.Citations {
		switch v := c.(type) {
		case string:
			citations = append(citations, v)
		case map[string]any:
			if u, ok := v["url"].(string); ok {
				citations = append(citations, u)
			}
		}
	}
	return content, citations
}

func formatSources(label string, sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(label)
	b.WriteString("\n")
	for i, url := range sources {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, url)
	}
	return strings.TrimRight(b.String(), "\n")
}

func marshalResult(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"status":"error","message":"internal marshal failure"}`
	}
	return string(data)
}
