package security

import "fmt"

// ErrorKind classifies failures the way the rest of the daemon's error
// handling design expects (SecurityPolicy vs SecurityStorage), mirroring
// the teacher's pattern of a typed error with an HTTP-mappable kind
// (pkg/api/errors.go, pkg/config/errors.go).
type ErrorKind string

const (
	// KindPolicy covers any TPM/policy violation: fatal to the call,
	// surfaces the recovery runbook.
	KindPolicy ErrorKind = "SecurityPolicy"
	// KindStorage covers platform secret-store I/O: retryable by the
	// caller after recovery.
	KindStorage ErrorKind = "SecurityStorage"
)

// Error is the C1 error type. Its Error() string must reproduce the
// reserved error-kind strings verbatim where the spec requires it.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func policyErr(msg string) *Error  { return &Error{Kind: KindPolicy, Msg: msg} }
func storageErr(msg string) *Error { return &Error{Kind: KindStorage, Msg: msg} }

// RecoveryRunbook is the verbatim recovery procedure appended to every
// reset/mismatch/lockout error.
func RecoveryRunbook() string {
	return "1) stop the daemon and UI, 2) verify TPM device presence and ownership, " +
		"3) if TPM was reset/reprovisioned, run migration/recovery path and reprovision keys, " +
		"4) restore secrets from trusted backup, 5) restart in strict mode and verify checks"
}

func errMissingTPM() *Error {
	return policyErr("TPM is required in strict mode; no TPM device found")
}

func errReset(detail string) *Error {
	return policyErr(fmt.Sprintf("TPM reset or reprovision detected (%s). Recovery runbook: %s", detail, RecoveryRunbook()))
}

func errPolicyMismatch() *Error {
	return policyErr(fmt.Sprintf("TPM policy mismatch detected. Recovery runbook: %s", RecoveryRunbook()))
}

func errLockout() *Error {
	return policyErr(fmt.Sprintf("TPM lockout/auth failure detected. Recovery runbook: %s", RecoveryRunbook()))
}

// IsLockoutLike reports whether err's message looks like an auth/lockout
// failure from the underlying secret store, the same heuristic as the
// original implementation's lockout_like check.
func IsLockoutLike(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, needle := range []string{"lockout", "locked", "auth"} {
		if containsFold(msg, needle) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	ls, lsub := len(s), len(substr)
	if lsub == 0 {
		return 0
	}
	for i := 0; i+lsub <= ls; i++ {
		if equalFold(s[i:i+lsub], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
