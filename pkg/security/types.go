package security

// LifecycleState mirrors the key lifecycle's state machine:
// Provision -> Seal -> Unseal -> Use <-> Rotate -> Revoke -> (re-)Provision.
type LifecycleState string

const (
	StateProvision LifecycleState = "provision"
	StateSeal      LifecycleState = "seal"
	StateUnseal    LifecycleState = "unseal"
	StateUse       LifecycleState = "use"
	StateRotate    LifecycleState = "rotate"
	StateRevoke    LifecycleState = "revoke"
)

// PolicyState is the on-disk record binding a sealed DEK to the backend
// that sealed it. Version lets future migrations recognize old records.
type PolicyState struct {
	Version        uint8          `json:"version"`
	Fingerprint    string         `json:"fingerprint"`
	LifecycleState LifecycleState `json:"lifecycle_state"`
}

// Backend abstracts the platform-specific trust anchor used to fingerprint
// the machine's security posture. A real TPM device on Linux, or an opaque
// generated identity on platforms without one.
type Backend interface {
	IsPresent() bool
	Fingerprint() (string, error)
}

// KekStore abstracts the platform secret store holding the key-encryption
// key. Go's ecosystem has no portable equivalent of the OS keychain
// bindings the original implementation used (out of scope per this
// project's surrounding-concerns exclusions), so the Generic backend is
// paired with a file-based KekStore under the security state directory.
type KekStore interface {
	GetKEK() (string, bool, error)
	SetKEK(value string) error
	ClearKEK() error
}
