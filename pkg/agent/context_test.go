package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
)

type errContextSource struct{}

func (errContextSource) FetchContext(context.Context) (string, error) {
	return "", errors.New("unreachable")
}

func TestEnsureContextInMemory_InsertsContextMessageOnFirstLoad(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	deps.Source = StaticContextSource("# context doc")
	o := NewOrchestrator(deps)

	loaded := o.ensureContextInMemory(context.Background(), "u1")
	assert.True(t, loaded)

	history, err := o.messages.GetHistory(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "context", history[0].Role)
}

func TestEnsureContextInMemory_SkipsReinsertWhenUnchanged(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	deps.Source = StaticContextSource("# context doc")
	o := NewOrchestrator(deps)
	ctx := context.Background()

	o.ensureContextInMemory(ctx, "u1")
	o.lastRefresh = o.lastRefresh.Add(-time.Hour)
	o.ensureContextInMemory(ctx, "u1")

	history, err := o.messages.GetHistory(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestEnsureContextInMemory_FailureLeavesContextUnloaded(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	deps.Source = errContextSource{}
	o := NewOrchestrator(deps)

	loaded := o.ensureContextInMemory(context.Background(), "u1")
	assert.False(t, loaded)
}

type errPromptSource struct{}

func (errPromptSource) FetchHeartbeatMD(context.Context) (string, error) {
	return "", errors.New("unreachable")
}

func (errPromptSource) FetchPromptMD(context.Context) (string, error) {
	return "", errors.New("unreachable")
}

func TestReloadPromptMaterial_UpdatesComposedPrompt(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	deps.PromptSource = StaticPromptSource{Heartbeat: "new heartbeat", Prompt: "new prompt"}
	o := NewOrchestrator(deps)

	require.NoError(t, o.ReloadPromptMaterial(context.Background()))

	prompt := o.composeSystemPrompt(false, nil)
	assert.Contains(t, prompt, "new heartbeat")
	assert.Contains(t, prompt, "new prompt")
}

func TestReloadPromptMaterial_FailureLeavesPriorMaterialInPlace(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	deps.Settings.HeartbeatMD = "stable heartbeat"
	deps.PromptSource = errPromptSource{}
	o := NewOrchestrator(deps)

	assert.Error(t, o.ReloadPromptMaterial(context.Background()))
	assert.Equal(t, "stable heartbeat", o.currentHeartbeatMD())
}

func TestTruncateContextDoc_CapsLength(t *testing.T) {
	big := make([]byte, 9000)
	for i := range big {
		big[i] = 'x'
	}
	out := truncateContextDoc(string(big))
	assert.Len(t, out, 8000)
}
