package llm

import (
	"context"
	"fmt"
)

// MockProvider is a deterministic, dependency-free Provider used by tests
// and by the daemon when llm.backend=mock. It never calls out to a real
// model; GenerateText and friends just echo canned or templated output.
type MockProvider struct {
	// TextFunc, if set, overrides GenerateText's canned response.
	TextFunc func(prompt, system string) (string, error)
	// ToolCalls, if non-nil, is returned verbatim by GenerateWithTools on
	// its first invocation; subsequent calls return plain text, so tests
	// can script a single tool round-trip.
	ToolCalls      []ToolCall
	toolCallsSpent bool
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) GenerateText(_ context.Context, prompt, system string) (string, error) {
	if m.TextFunc != nil {
		return m.TextFunc(prompt, system)
	}
	return fmt.Sprintf("mock response to: %s", prompt), nil
}

func (m *MockProvider) GenerateWithTools(_ context.Context, prompt, _ string, _ []ToolDefinition) (*GenerateWithToolsResult, error) {
	if !m.toolCallsSpent && len(m.ToolCalls) > 0 {
		m.toolCallsSpent = true
		return &GenerateWithToolsResult{ToolCalls: m.ToolCalls}, nil
	}
	return &GenerateWithToolsResult{Text: fmt.Sprintf("mock response to: %s", prompt)}, nil
}

func (m *MockProvider) ChatStream(_ context.Context, messages []Message, _ []ToolDefinition) (<-chan ChatEvent, error) {
	out := make(chan ChatEvent, 2)
	var last string
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	go func() {
		defer close(out)
		out <- ChatEvent{EventType: ChatEventContent, Delta: fmt.Sprintf("mock reply to: %s", last)}
		out <- ChatEvent{EventType: ChatEventMessageEnd, FinishReason: "stop"}
	}()
	return out, nil
}

func (m *MockProvider) ParseStructuredOutput(_ context.Context, _, _, schema string, _ []ToolDefinition) (string, error) {
	return `{}`, nil
}

func (m *MockProvider) GenerateTextWithImages(_ context.Context, prompt string, _ []ImageInput, _, _ string, _ []ToolDefinition) (string, error) {
	return fmt.Sprintf("mock vision response to: %s", prompt), nil
}

func (m *MockProvider) Embed(_ context.Context, inputs []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0, 0, 0, 0}
	}
	return out, nil
}

func (m *MockProvider) TTS(_ context.Context, text, _, _ string) ([]byte, error) {
	return []byte(text), nil
}

func (m *MockProvider) TranscribeAudio(_ context.Context, _ []byte, _ string) (string, error) {
	return "mock transcript", nil
}

var _ Provider = (*MockProvider)(nil)
