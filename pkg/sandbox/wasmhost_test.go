package sandbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

// A full guest round-trip (compiling and instantiating an actual WASM
// binary) needs a compiled .wasm fixture; none ships in this
// repository's example pack, so these tests cover the ABI helpers and
// response parsing directly instead of exercising wazero end to end.

func TestPackUnpackPtrLen_RoundTrip(t *testing.T) {
	packed := packPtrLen(0x1000, 256)
	ptr, length := unpackPtrLen(packed)
	assert.Equal(t, uint32(0x1000), ptr)
	assert.Equal(t, uint32(256), length)
}

func TestPackUnpackPtrLen_ZeroValues(t *testing.T) {
	ptr, length := unpackPtrLen(packPtrLen(0, 0))
	assert.Equal(t, uint32(0), ptr)
	assert.Equal(t, uint32(0), length)
}

func TestGuestResponse_ParsesOkStatus(t *testing.T) {
	var resp guestResponse
	require := []byte(`{"status":"ok","result":"done"}`)
	assert.NoError(t, json.Unmarshal(require, &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestGuestResponse_ParsesCapabilityCall(t *testing.T) {
	var resp guestResponse
	raw := []byte(`{"status":"capability_call","capability_call":{"name":"kv.sqlite.todo.create","args":{"title":"x"}}}`)
	assert.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "capability_call", resp.Status)
	assert.Equal(t, "kv.sqlite.todo.create", resp.CapabilityCall.Name)
	assert.Equal(t, "x", resp.CapabilityCall.Args["title"])
}

func TestGuestResponse_ParsesErrorStatus(t *testing.T) {
	var resp guestResponse
	raw := []byte(`{"status":"error","code":"invalid_args","error":"Missing title"}`)
	assert.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "invalid_args", resp.Code)
}

func TestMaxWasmInputBytes_RejectsOversizedInput(t *testing.T) {
	big := make([]byte, maxWasmInputBytes+1)
	assert.Greater(t, len(big), maxWasmInputBytes)
}
