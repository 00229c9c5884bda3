package llm

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCProvider talks to an out-of-process LLM sidecar over gRPC, the same
// deployment shape as the teacher's pkg/llm.Client (a Go process calling a
// Python LLM service). Unlike the teacher, this package ships no
// protoc-generated stubs; requests and responses are exchanged as
// google.protobuf.Struct values (structpb), a pre-built proto.Message type
// from the protobuf module itself, over a hand-described streaming method.
// This keeps the wire format genuinely protobuf while letting the sidecar
// contract evolve without a .proto/protoc build step in this repo.
type GRPCProvider struct {
	conn  *grpc.ClientConn
	model string
}

const generateStreamMethod = "/butterfly.llm.LLMService/GenerateStream"

var structCodec = grpc.ForceCodec(structpbCodec{})

// NewGRPCProvider dials the LLM sidecar at target (e.g. "127.0.0.1:9091").
func NewGRPCProvider(target, model string) (*GRPCProvider, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LLM sidecar: %w", err)
	}
	return &GRPCProvider{conn: conn, model: model}, nil
}

// Close releases the gRPC connection.
func (p *GRPCProvider) Close() error {
	return p.conn.Close()
}

func (p *GRPCProvider) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	events, err := p.ChatStream(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		return "", err
	}
	var out string
	for ev := range events {
		switch ev.EventType {
		case ChatEventContent:
			out += ev.Delta
		case ChatEventError:
			return "", ev.Error
		}
	}
	return out, nil
}

func (p *GRPCProvider) GenerateWithTools(ctx context.Context, prompt, system string, tools []ToolDefinition) (*GenerateWithToolsResult, error) {
	events, err := p.ChatStream(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}, tools)
	if err != nil {
		return nil, err
	}
	result := &GenerateWithToolsResult{}
	pending := map[string]*ToolCall{}
	order := []string{}
	for ev := range events {
		switch ev.EventType {
		case ChatEventContent:
			if ev.Name != "" {
				tc, ok := pending[ev.Name]
				if !ok {
					tc = &ToolCall{Name: ev.Name}
					pending[ev.Name] = tc
					order = append(order, ev.Name)
				}
				tc.Arguments += ev.ArgumentsDelta
			} else {
				result.Text += ev.Delta
			}
		case ChatEventError:
			return nil, ev.Error
		}
	}
	for _, name := range order {
		result.ToolCalls = append(result.ToolCalls, *pending[name])
	}
	return result, nil
}

// ChatStream opens a server-streaming RPC to the sidecar and translates
// each received Struct frame into a ChatEvent.
func (p *GRPCProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan ChatEvent, error) {
	req, err := structpb.NewStruct(requestPayload(p.model, messages, tools))
	if err != nil {
		return nil, fmt.Errorf("failed to build request payload: %w", err)
	}

	stream, err := p.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, generateStreamMethod, structCodec)
	if err != nil {
		return nil, fmt.Errorf("failed to open LLM stream: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("failed to send LLM request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("failed to close send side: %w", err)
	}

	out := make(chan ChatEvent, 16)
	go func() {
		defer close(out)
		for {
			resp := &structpb.Struct{}
			err := stream.RecvMsg(resp)
			if err == io.EOF {
				return
			}
			if err != nil {
				out <- ChatEvent{EventType: ChatEventError, Error: fmt.Errorf("LLM stream error: %w", err)}
				return
			}
			ev := chatEventFromStruct(resp)
			out <- ev
			if ev.EventType == ChatEventMessageEnd || ev.EventType == ChatEventError {
				return
			}
		}
	}()
	return out, nil
}

func (p *GRPCProvider) ParseStructuredOutput(ctx context.Context, prompt, system, schema string, tools []ToolDefinition) (string, error) {
	wrapped := fmt.Sprintf("%s\n\nRespond with JSON matching this schema:\n%s", prompt, schema)
	return p.GenerateText(ctx, wrapped, system)
}

func (p *GRPCProvider) GenerateTextWithImages(ctx context.Context, prompt string, images []ImageInput, system, detail string, tools []ToolDefinition) (string, error) {
	return "", fmt.Errorf("llm: grpc provider does not support vision input")
}

func (p *GRPCProvider) Embed(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	return nil, fmt.Errorf("llm: grpc provider does not support embeddings")
}

func (p *GRPCProvider) TTS(ctx context.Context, text, voice, format string) ([]byte, error) {
	return nil, fmt.Errorf("llm: grpc provider does not support TTS")
}

func (p *GRPCProvider) TranscribeAudio(ctx context.Context, audio []byte, format string) (string, error) {
	return "", fmt.Errorf("llm: grpc provider does not support transcription")
}

var _ Provider = (*GRPCProvider)(nil)
