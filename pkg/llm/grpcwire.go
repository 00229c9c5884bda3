package llm

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// structpbCodec is a grpc.Codec that only ever (de)serializes
// *structpb.Struct messages, letting GRPCProvider speak real protobuf wire
// format to the sidecar without protoc-generated service stubs.
type structpbCodec struct{}

func (structpbCodec) Name() string { return "structpb" }

func (structpbCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("structpbCodec: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (structpbCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("structpbCodec: %T is not a proto.Message", v)
	}
	return proto.Unmarshal(data, m)
}

// requestPayload builds the wire request as a plain Go map suitable for
// structpb.NewStruct: {model, messages:[{role,content}], tools:[{name,
// description, parameters_schema}]}.
func requestPayload(model string, messages []Message, tools []ToolDefinition) map[string]any {
	msgs := make([]any, len(messages))
	for i, m := range messages {
		msgs[i] = map[string]any{
			"role":         m.Role,
			"content":      m.Content,
			"tool_call_id": m.ToolCallID,
			"tool_name":    m.ToolName,
		}
	}
	toolDefs := make([]any, len(tools))
	for i, t := range tools {
		toolDefs[i] = map[string]any{
			"name":              t.Name,
			"description":       t.Description,
			"parameters_schema": t.ParametersSchema,
		}
	}
	return map[string]any{
		"model":    model,
		"messages": msgs,
		"tools":    toolDefs,
	}
}

// chatEventFromStruct decodes one response frame. The sidecar contract is:
// {"event_type": "content"|"message_end"|"error", "delta": "...",
// "name": "...", "arguments_delta": "...", "finish_reason": "...",
// "error": "..."}.
func chatEventFromStruct(s *structpb.Struct) ChatEvent {
	fields := s.GetFields()
	get := func(key string) string {
		if v, ok := fields[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}

	eventType := ChatEventType(get("event_type"))
	ev := ChatEvent{
		EventType:      eventType,
		Delta:          get("delta"),
		Name:           get("name"),
		ArgumentsDelta: get("arguments_delta"),
		FinishReason:   get("finish_reason"),
	}
	if eventType == ChatEventError {
		ev.Error = fmt.Errorf("llm: %s", get("error"))
	}
	return ev
}
