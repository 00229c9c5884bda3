package config

import "time"

// KeyProviderMode selects the C1 key-lifecycle backend.
type KeyProviderMode string

const (
	KeyProviderLinux   KeyProviderMode = "linux"
	KeyProviderGeneric KeyProviderMode = "generic"
)

// LLMBackend selects the C4 provider implementation.
type LLMBackend string

const (
	LLMBackendMock LLMBackend = "mock"
	LLMBackendGRPC LLMBackend = "grpc"
)

// DatabaseConfig configures the C2 encrypted SQLite persistence layer.
type DatabaseConfig struct {
	Path             string `yaml:"path"`
	BusyTimeoutMs    int    `yaml:"busy_timeout_ms"`
	MigrationsSource string `yaml:"migrations_source"` // reserved for non-embedded overrides
}

// SecurityConfig configures the C1 key lifecycle provider.
type SecurityConfig struct {
	Provider  KeyProviderMode `yaml:"provider"`
	StateDir  string          `yaml:"state_dir"`
	TPMDevice string          `yaml:"tpm_device"` // e.g. /dev/tpmrm0, Linux backend only
}

// SandboxConfig configures the C3 tool registry and WASM sandbox.
type SandboxConfig struct {
	DefaultDenyNetwork bool     `yaml:"default_deny_network"`
	NetworkAllowlist   []string `yaml:"network_allowlist"`
	WasmModuleDir      string   `yaml:"wasm_module_dir"`
	AuditLogPath       string   `yaml:"audit_log_path"`
	// NativeOverrides lists built-in tool names explicitly opted out of WASM.
	NativeOverrides []string `yaml:"native_overrides"`
}

// LLMConfig configures the C4 provider abstraction.
type LLMConfig struct {
	Backend    LLMBackend `yaml:"backend"`
	Model      string     `yaml:"model"`
	GRPCTarget string     `yaml:"grpc_target"`
	Timeout    time.Duration `yaml:"timeout"`
}

// HTTPConfig configures the C7 control plane.
type HTTPConfig struct {
	BindAddr  string `yaml:"bind_addr"`
	AuthToken string `yaml:"auth_token"`
}

// Config is the fully assembled, typed configuration for the daemon.
// Raw retains the merged nested map so scheduler-style dotted keys
// (brains.settings.tick_seconds, tools.wakeup.poll_seconds, ...) can be
// read without a dedicated struct field for every recognized option.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Security SecurityConfig `yaml:"security"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	LLM      LLMConfig      `yaml:"llm"`
	HTTP     HTTPConfig     `yaml:"http"`

	Raw map[string]any `yaml:"-"`
}

// Stats summarizes a loaded configuration for startup logging.
type Stats struct {
	DatabasePath       string
	KeyProvider        KeyProviderMode
	LLMBackend         LLMBackend
	SandboxDefaultDeny bool
	AllowlistSize      int
}

// Stats returns a summary suitable for a single startup log line.
func (c *Config) Stats() Stats {
	return Stats{
		DatabasePath:       c.Database.Path,
		KeyProvider:        c.Security.Provider,
		LLMBackend:         c.LLM.Backend,
		SandboxDefaultDeny: c.Sandbox.DefaultDenyNetwork,
		AllowlistSize:      len(c.Sandbox.NetworkAllowlist),
	}
}
