package security

// fakeBackend and fakeKekStore are in-memory test doubles mirroring the
// original implementation's MemoryTpmBackend/MemoryKekStore test fixtures.

type fakeBackend struct {
	present     bool
	fingerprint string
	fpErr       error
}

func (f *fakeBackend) IsPresent() bool { return f.present }

func (f *fakeBackend) Fingerprint() (string, error) {
	if f.fpErr != nil {
		return "", f.fpErr
	}
	return f.fingerprint, nil
}

type fakeKekStore struct {
	value   string
	present bool
	getErr  error
}

func (f *fakeKekStore) GetKEK() (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	if !f.present {
		return "", false, nil
	}
	return f.value, true, nil
}

func (f *fakeKekStore) SetKEK(value string) error {
	f.value = value
	f.present = true
	return nil
}

func (f *fakeKekStore) ClearKEK() error {
	f.value = ""
	f.present = false
	return nil
}
