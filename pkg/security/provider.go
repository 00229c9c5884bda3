package security

import "runtime"

// NewRuntimeForMode builds the Runtime for the configured provider mode,
// choosing LinuxBackend in strict "linux" mode and GenericBackend
// otherwise, pairing either with the file-based KekStore.
func NewRuntimeForMode(mode, stateDir string) *Runtime {
	var backend Backend
	strict := false

	switch mode {
	case "linux":
		backend = NewLinuxBackend()
		strict = runtime.GOOS == "linux"
	default:
		backend = NewGenericBackend(stateDir)
	}

	return NewRuntime(backend, NewFileKekStore(stateDir), stateDir, strict)
}
