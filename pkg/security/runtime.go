package security

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

const policyVersion uint8 = 1

// Runtime drives the key lifecycle state machine against a Backend and a
// KekStore, mirroring the original implementation's TpmRuntime. It owns a
// security root directory holding the policy state record and the sealed
// DEK envelope.
type Runtime struct {
	backend  Backend
	kekStore KekStore
	root     string
	strict   bool
}

// NewRuntime constructs a Runtime rooted at root. strict mirrors the
// Linux "TPM required" policy: when true, RequirePresent fails closed if
// the backend reports absent.
func NewRuntime(backend Backend, kekStore KekStore, root string, strict bool) *Runtime {
	return &Runtime{backend: backend, kekStore: kekStore, root: root, strict: strict}
}

func (r *Runtime) policyStatePath() string { return filepath.Join(r.root, "policy_state.json") }
func (r *Runtime) wrappedDEKPath() string  { return filepath.Join(r.root, "wrapped_dek.sealed") }

func (r *Runtime) ensureRoot() error {
	if err := os.MkdirAll(r.root, 0o700); err != nil {
		return storageErr("security root: " + err.Error())
	}
	return nil
}

func (r *Runtime) loadPolicyState() (*PolicyState, bool, error) {
	data, err := os.ReadFile(r.policyStatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, storageErr("policy state read: " + err.Error())
	}
	var state PolicyState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, errReset("corrupt policy state: " + err.Error())
	}
	return &state, true, nil
}

func (r *Runtime) savePolicyState(state *PolicyState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return storageErr("policy state marshal: " + err.Error())
	}
	if err := os.WriteFile(r.policyStatePath(), data, 0o600); err != nil {
		return storageErr("policy state write: " + err.Error())
	}
	return nil
}

// RequirePresent fails closed in strict mode when the backend reports no
// device present, surfacing the reserved missing-TPM error string.
func (r *Runtime) RequirePresent() error {
	if r.strict && !r.backend.IsPresent() {
		return errMissingTPM()
	}
	return nil
}

func (r *Runtime) verifyFingerprint(expected string) error {
	actual, err := r.backend.Fingerprint()
	if err != nil {
		return err
	}
	if actual != expected {
		return errPolicyMismatch()
	}
	return nil
}

// Provision is idempotent: if a policy state already exists it verifies
// the fingerprint and that the sealed DEK still decrypts under the stored
// KEK; otherwise it generates a fresh KEK and DEK and seals them.
func (r *Runtime) Provision() error {
	if err := r.RequirePresent(); err != nil {
		return err
	}
	if err := r.ensureRoot(); err != nil {
		return err
	}

	state, exists, err := r.loadPolicyState()
	if err != nil {
		return err
	}

	if exists {
		if err := r.verifyFingerprint(state.Fingerprint); err != nil {
			return err
		}
		kek, ok, err := r.kekStore.GetKEK()
		if err != nil {
			if IsLockoutLike(err) {
				return errLockout()
			}
			return err
		}
		if !ok {
			return errReset("kek missing for existing policy state")
		}
		if _, err := loadSecret(r.wrappedDEKPath(), kek); err != nil {
			return err
		}
		slog.Info("security: provision verified existing state", "fingerprint", state.Fingerprint)
		return nil
	}

	fingerprint, err := r.backend.Fingerprint()
	if err != nil {
		return err
	}
	kek, err := randomSecret()
	if err != nil {
		return storageErr("provision: " + err.Error())
	}
	if err := r.kekStore.SetKEK(kek); err != nil {
		return err
	}
	dek, err := randomSecret()
	if err != nil {
		return storageErr("provision: " + err.Error())
	}
	if err := persistSecret(r.wrappedDEKPath(), kek, []byte(dek)); err != nil {
		return err
	}

	newState := &PolicyState{Version: policyVersion, Fingerprint: fingerprint, LifecycleState: StateSeal}
	if err := r.savePolicyState(newState); err != nil {
		return err
	}
	slog.Info("security: provisioned new key material", "fingerprint", fingerprint)
	return nil
}

// UnsealDEK provisions if necessary, then returns the plaintext DEK bytes.
func (r *Runtime) UnsealDEK() ([]byte, error) {
	if err := r.RequirePresent(); err != nil {
		return nil, err
	}
	if err := r.Provision(); err != nil {
		return nil, err
	}

	state, exists, err := r.loadPolicyState()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errReset("policy state missing after provision")
	}
	if err := r.verifyFingerprint(state.Fingerprint); err != nil {
		return nil, err
	}

	kek, ok, err := r.kekStore.GetKEK()
	if err != nil {
		if IsLockoutLike(err) {
			return nil, errLockout()
		}
		return nil, err
	}
	if !ok {
		return nil, errReset("kek not found during unseal")
	}

	dek, err := loadSecret(r.wrappedDEKPath(), kek)
	if err != nil {
		return nil, err
	}

	state.LifecycleState = StateUse
	if err := r.savePolicyState(state); err != nil {
		return nil, err
	}
	return dek, nil
}

// RotateDEK reseals a freshly generated DEK under the existing KEK,
// leaving the KEK itself and the fingerprint binding untouched.
func (r *Runtime) RotateDEK() error {
	if err := r.RequirePresent(); err != nil {
		return err
	}

	state, exists, err := r.loadPolicyState()
	if err != nil {
		return err
	}
	if !exists {
		return errReset("policy state missing during rotate")
	}
	if err := r.verifyFingerprint(state.Fingerprint); err != nil {
		return err
	}

	kek, ok, err := r.kekStore.GetKEK()
	if err != nil {
		if IsLockoutLike(err) {
			return errLockout()
		}
		return err
	}
	if !ok {
		return errReset("kek not found during rotate")
	}

	newDEK, err := randomSecret()
	if err != nil {
		return storageErr("rotate: " + err.Error())
	}
	if err := persistSecret(r.wrappedDEKPath(), kek, []byte(newDEK)); err != nil {
		return err
	}

	state.LifecycleState = StateRotate
	if err := r.savePolicyState(state); err != nil {
		return err
	}
	slog.Info("security: rotated DEK", "fingerprint", state.Fingerprint)
	return nil
}

// RevokeKeys best-effort removes the policy state, the sealed DEK, and
// clears the KEK store. Absence of any one of those is not an error: the
// end state (nothing left to recover) is what matters.
func (r *Runtime) RevokeKeys() error {
	if err := removeIfExists(r.policyStatePath()); err != nil {
		return err
	}
	if err := removeIfExists(r.wrappedDEKPath()); err != nil {
		return err
	}
	if err := r.kekStore.ClearKEK(); err != nil {
		return err
	}
	slog.Info("security: revoked key material")
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return storageErr("revoke: " + err.Error())
	}
	return nil
}
