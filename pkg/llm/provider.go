// Package llm abstracts chat-completion backends behind a single Provider
// interface, generalizing the teacher's pkg/agent.LLMClient /
// pkg/llm.Client gRPC streaming shape to the full capability set the
// orchestrator needs: text, tool-augmented text, structured output,
// streaming chat, vision, embeddings, TTS, and transcription.
package llm

import "context"

// Message is one turn in a conversation, matching the roles the
// orchestrator's prompt builder assembles.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCallID string // set on tool-result messages
	ToolName   string
}

// ToolDefinition describes a callable tool exposed to the model.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON Schema
}

// ToolCall is a model-requested invocation of a registered tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// ImageInput is one image attached to a vision request.
type ImageInput struct {
	Data     []byte
	MimeType string
}

// ChatEventType enumerates the kinds of event a streaming chat emits.
type ChatEventType string

const (
	ChatEventContent     ChatEventType = "content"
	ChatEventMessageEnd  ChatEventType = "message_end"
	ChatEventError       ChatEventType = "error"
)

// ChatEvent is one element of a chat_stream sequence. Streams are consumed
// strictly in order; a terminal message_end or error event closes the
// sequence — callers must not read past either.
type ChatEvent struct {
	EventType      ChatEventType
	Delta          string // incremental text, event_type=content
	Name           string // tool name, for tool-call deltas
	ArgumentsDelta string // incremental tool-call arguments JSON
	FinishReason   string // set on message_end
	Error          error  // set on error
}

// GenerateWithToolsResult is the result of a single non-streaming
// tool-augmented generation.
type GenerateWithToolsResult struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider is the abstract LLM backend contract. Every method is
// independently optional to implement fully — a backend that cannot
// support a capability (e.g. a text-only model asked for TTS) returns an
// error rather than panicking, so the orchestrator can treat it as a
// skippable step the same way it treats a missing MCP server.
type Provider interface {
	// GenerateText performs a single-shot completion with no tool use.
	GenerateText(ctx context.Context, prompt, system string) (string, error)

	// GenerateWithTools performs a single-shot completion that may invoke
	// tools. Returns the text produced plus any requested tool calls.
	GenerateWithTools(ctx context.Context, prompt, system string, tools []ToolDefinition) (*GenerateWithToolsResult, error)

	// ChatStream returns a finite, non-restartable, in-order sequence of
	// ChatEvent for a multi-turn conversation with optional tool use. The
	// returned channel is closed after the terminal event is delivered.
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan ChatEvent, error)

	// ParseStructuredOutput asks the model to produce JSON conforming to
	// schema (a JSON Schema document) and returns the raw JSON text.
	ParseStructuredOutput(ctx context.Context, prompt, system, schema string, tools []ToolDefinition) (string, error)

	// GenerateTextWithImages performs vision-augmented completion.
	GenerateTextWithImages(ctx context.Context, prompt string, images []ImageInput, system, detail string, tools []ToolDefinition) (string, error)

	// Embed returns one embedding vector per input string.
	Embed(ctx context.Context, inputs []string, model string) ([][]float32, error)

	// TTS synthesizes speech audio for text in the given voice/format.
	TTS(ctx context.Context, text, voice, format string) ([]byte, error)

	// TranscribeAudio converts audio bytes of the given format to text.
	TranscribeAudio(ctx context.Context, audio []byte, format string) (string, error)
}
