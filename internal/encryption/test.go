package encryption

import (
	"bytes"
	"fmt"
	"io"

	"goaltrack/internal/gt"
)

// testHeader marks data "encrypted" by TestEncryptor. It never starts with
// '{', so encoded snapshots are recognized as encrypted.
var testHeader = []byte("GTENC\x00\x00\x00")

// TestEncryptor is a deterministic stand-in for tests and demos. It
// prepends a fixed header on encrypt and strips it on decrypt. When created
// with a passphrase, Unlock rejects any other passphrase.
type TestEncryptor struct {
	passphrase string
	setups     int
}

var _ gt.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor. An empty passphrase accepts any
// passphrase on Unlock.
func NewTestEncryptor(passphrase string) *TestEncryptor {
	return &TestEncryptor{passphrase: passphrase}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.setups++
	e.passphrase = passphrase
	return nil
}

// Setups reports how many times Setup ran.
func (e *TestEncryptor) Setups() int {
	return e.setups
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(testHeader), r)); err != nil {
		return fmt.Errorf("test encrypt: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (gt.DecryptionContext, error) {
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, gt.Errorf(gt.KindAuth, "unlock private key", "incorrect passphrase")
	}
	return TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ gt.DecryptionContext = TestDecryptionContext{}

func (TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	var header [8]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil || !bytes.Equal(header[:n], testHeader) {
		return gt.Errorf(gt.KindInvalidFormat, "test decrypt", "missing test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("test decrypt: %w", err)
	}
	return nil
}
