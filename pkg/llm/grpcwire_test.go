package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestRequestPayload_ShapesMessagesAndTools(t *testing.T) {
	payload := requestPayload("gpt-test", []Message{
		{Role: "user", Content: "hi"},
	}, []ToolDefinition{
		{Name: "search_internet", Description: "search", ParametersSchema: `{"type":"object"}`},
	})

	assert.Equal(t, "gpt-test", payload["model"])
	msgs := payload["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])

	tools := payload["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "search_internet", tools[0].(map[string]any)["name"])
}

func TestChatEventFromStruct_Content(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{
		"event_type": "content",
		"delta":      "hello",
	})
	require.NoError(t, err)

	ev := chatEventFromStruct(s)
	assert.Equal(t, ChatEventContent, ev.EventType)
	assert.Equal(t, "hello", ev.Delta)
	assert.NoError(t, ev.Error)
}

func TestChatEventFromStruct_Error(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{
		"event_type": "error",
		"error":      "boom",
	})
	require.NoError(t, err)

	ev := chatEventFromStruct(s)
	assert.Equal(t, ChatEventError, ev.EventType)
	require.Error(t, ev.Error)
	assert.Contains(t, ev.Error.Error(), "boom")
}

func TestStructpbCodec_RoundTrip(t *testing.T) {
	codec := structpbCodec{}
	in, err := structpb.NewStruct(map[string]any{"a": 1.0, "b": "x"})
	require.NoError(t, err)

	data, err := codec.Marshal(in)
	require.NoError(t, err)

	out := &structpb.Struct{}
	require.NoError(t, codec.Unmarshal(data, out))
	assert.Equal(t, in.GetFields()["a"].GetNumberValue(), out.GetFields()["a"].GetNumberValue())
	assert.Equal(t, "x", out.GetFields()["b"].GetStringValue())
}
