package sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// maxWasmInputBytes is the spec's oversized-input threshold: a guest
// call with a JSON-encoded input larger than this fails closed instead
// of being handed to the guest.
const maxWasmInputBytes = 1 << 20

// maxCapabilityRoundTrips bounds how many times a guest may re-enter
// execute via a capability_call response before the host gives up.
const maxCapabilityRoundTrips = 8

// guestResponse is the JSON envelope a guest's execute() may return,
// per the host/guest protocol in wasm-tool/src/lib.rs.
type guestResponse struct {
	Status         string          `json:"status"`
	Code           string          `json:"code,omitempty"`
	Error          string          `json:"error,omitempty"`
	CapabilityCall *capabilityCall `json:"capability_call,omitempty"`
}

type capabilityCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// WasmHost compiles and runs guest modules against the alloc/dealloc/
// execute ABI, re-entering execute on capability_call responses.
type WasmHost struct {
	runtime    wazero.Runtime
	dispatcher *CapabilityDispatcher
}

// NewWasmHost creates a WasmHost with its own wazero runtime, shared
// across every WasmTool it compiles.
func NewWasmHost(ctx context.Context, dispatcher *CapabilityDispatcher) *WasmHost {
	return &WasmHost{
		runtime:    wazero.NewRuntime(ctx),
		dispatcher: dispatcher,
	}
}

// Close releases the underlying wazero runtime and every module
// compiled against it.
func (h *WasmHost) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// Compile compiles wasmBytes once; the returned CompiledModule is
// cheap to instantiate per call from WasmTool.Execute.
func (h *WasmHost) Compile(ctx context.Context, wasmBytes []byte) (wazero.CompiledModule, error) {
	return h.runtime.CompileModule(ctx, wasmBytes)
}

// WasmTool adapts a compiled guest module into the Tool interface.
type WasmTool struct {
	name        string
	description string
	schema      string

	host     *WasmHost
	compiled wazero.CompiledModule
	config   map[string]any
}

var _ Tool = (*WasmTool)(nil)

// NewWasmTool wraps a compiled module as a registry Tool.
func NewWasmTool(host *WasmHost, compiled wazero.CompiledModule, name, description, schema string) *WasmTool {
	return &WasmTool{host: host, compiled: compiled, name: name, description: description, schema: schema}
}

func (t *WasmTool) Name() string             { return t.name }
func (t *WasmTool) Description() string      { return t.description }
func (t *WasmTool) ParametersSchema() string { return t.schema }
func (t *WasmTool) Configure(cfg map[string]any) error {
	t.config = cfg
	return nil
}

// WasmBacked reports true: a WasmTool always executes inside the WASM
// host, regardless of what a policy's native override requests.
func (t *WasmTool) WasmBacked() bool { return true }

var _ WasmBacked = (*WasmTool)(nil)

// Execute runs one guest call, looping on capability_call responses
// until a terminal ok/error status or the round-trip bound is hit.
func (t *WasmTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	mod, err := t.host.runtime.InstantiateModule(ctx, t.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return "", fmt.Errorf("wasm tool instantiate failed: %w", err)
	}
	defer mod.Close(ctx)

	input := params
	for round := 0; round < maxCapabilityRoundTrips; round++ {
		inputBytes, err := json.Marshal(input)
		if err != nil {
			return "", fmt.Errorf("wasm tool marshal input failed: %w", err)
		}
		if len(inputBytes) > maxWasmInputBytes {
			return "", fmt.Errorf("wasm tool input too large")
		}

		resp, raw, err := callExecuteOnce(ctx, mod, inputBytes)
		if err != nil {
			return "", err
		}

		switch resp.Status {
		case "ok":
			return string(raw), nil
		case "error":
			return "", fmt.Errorf("%s: %s", resp.Code, resp.Error)
		case "capability_call":
			if resp.CapabilityCall == nil {
				return "", fmt.Errorf("wasm tool execute failed: missing capability_call payload")
			}
			result, err := t.host.dispatcher.Dispatch(ctx, resp.CapabilityCall.Name, resp.CapabilityCall.Args)
			if err != nil {
				return "", err
			}
			input = result
		default:
			return "", fmt.Errorf("wasm tool execute failed: unrecognized status %q", resp.Status)
		}
	}
	return "", fmt.Errorf("wasm tool execute failed: exceeded capability round-trip limit")
}

// callExecuteOnce performs one alloc/write/execute/read/dealloc cycle
// against an instantiated guest module.
func callExecuteOnce(ctx context.Context, mod api.Module, input []byte) (guestResponse, []byte, error) {
	alloc := mod.ExportedFunction("alloc")
	dealloc := mod.ExportedFunction("dealloc")
	execute := mod.ExportedFunction("execute")
	if alloc == nil || dealloc == nil || execute == nil {
		return guestResponse{}, nil, fmt.Errorf("wasm tool execute failed: module missing alloc/dealloc/execute exports")
	}

	inLen := uint64(len(input))
	allocResult, err := alloc.Call(ctx, inLen)
	if err != nil || len(allocResult) != 1 {
		return guestResponse{}, nil, fmt.Errorf("wasm tool execute failed: alloc failed: %w", err)
	}
	inPtr := allocResult[0]

	if !mod.Memory().Write(uint32(inPtr), input) {
		return guestResponse{}, nil, fmt.Errorf("wasm tool execute failed: writing input to guest memory")
	}

	execResult, err := execute.Call(ctx, inPtr, inLen)
	_, _ = dealloc.Call(ctx, inPtr, inLen)
	if err != nil || len(execResult) != 1 {
		return guestResponse{}, nil, fmt.Errorf("wasm tool execute failed: %w", err)
	}

	outPtr, outLen := unpackPtrLen(execResult[0])
	raw, ok := mod.Memory().Read(outPtr, outLen)
	if !ok {
		return guestResponse{}, nil, fmt.Errorf("wasm tool execute failed: reading guest output")
	}
	// Copy before dealloc frees the guest-owned backing memory.
	out := make([]byte, len(raw))
	copy(out, raw)
	_, _ = dealloc.Call(ctx, uint64(outPtr), uint64(outLen))

	var resp guestResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return guestResponse{}, nil, fmt.Errorf("wasm tool execute failed: invalid guest response: %w", err)
	}
	return resp, out, nil
}

// packPtrLen packs a (ptr, len) pair into the i64 the guest's execute
// export returns, matching ((ptr as u64) << 32 | len as u64).
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// unpackPtrLen reverses packPtrLen.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
