package security

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
)

// candidateTPMDevices lists the device paths probed in order of
// preference: the resource-managed TPM device, then the raw one.
var candidateTPMDevices = []string{"/dev/tpmrm0", "/dev/tpm0"}

// LinuxBackend fingerprints a present TPM device the way the original
// implementation's DeviceTpmBackend does: hash the device path, its size,
// its mtime, and (if readable) the kernel's uevent metadata for tpm0. This
// binds the fingerprint to both the device file and the hosting machine
// without needing an actual TPM 2.0 command channel.
type LinuxBackend struct{}

func NewLinuxBackend() *LinuxBackend { return &LinuxBackend{} }

func (b *LinuxBackend) activeDevicePath() (string, bool) {
	for _, path := range candidateTPMDevices {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func (b *LinuxBackend) IsPresent() bool {
	_, ok := b.activeDevicePath()
	return ok
}

func (b *LinuxBackend) Fingerprint() (string, error) {
	path, ok := b.activeDevicePath()
	if !ok {
		return "", errMissingTPM()
	}

	h := sha256.New()
	h.Write([]byte(path))

	info, err := os.Stat(path)
	if err == nil {
		var sizeBuf [8]byte
		binary.LittleEndian.PutUint64(sizeBuf[:], uint64(info.Size()))
		h.Write(sizeBuf[:])

		var mtimeBuf [8]byte
		binary.LittleEndian.PutUint64(mtimeBuf[:], uint64(info.ModTime().Unix()))
		h.Write(mtimeBuf[:])
	}

	if uevent, err := os.ReadFile("/sys/class/tpm/tpm0/device/uevent"); err == nil {
		h.Write(uevent)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// GenericBackend is the cross-platform fallback used when no TPM device is
// expected (macOS/Windows/non-strict Linux). It persists an opaque random
// identity file the first time it runs and fingerprints against that, in
// place of the original's platform keychain-backed secure enclave binding
// (excluded here as an OS-specific keychain dependency).
type GenericBackend struct {
	identityPath string
}

func NewGenericBackend(stateDir string) *GenericBackend {
	return &GenericBackend{identityPath: filepath.Join(stateDir, "generic_identity")}
}

func (b *GenericBackend) IsPresent() bool {
	return true
}

func (b *GenericBackend) Fingerprint() (string, error) {
	if data, err := os.ReadFile(b.identityPath); err == nil && len(data) > 0 {
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	}

	identity, err := randomSecret()
	if err != nil {
		return "", storageErr("generic backend: " + err.Error())
	}
	if err := os.WriteFile(b.identityPath, []byte(identity), 0o600); err != nil {
		return "", storageErr("generic backend: " + err.Error())
	}
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:]), nil
}
