package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
	"filippo.io/age/armor"

	"goaltrack/internal/config"
	"goaltrack/internal/gt"
)

// AgeEncryptor protects the remote snapshot with an age X25519 key pair.
//
// The recipient (public) key sits in plaintext so background syncs encrypt
// without a prompt. The identity (private) key is sealed with the user's
// passphrase through an scrypt recipient and ASCII armored; it is only
// opened for a restore.
type AgeEncryptor struct {
	recipientPath string
	identityPath  string

	mu        sync.Mutex
	recipient age.Recipient
}

var _ gt.Encryptor = (*AgeEncryptor)(nil)

func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		recipientPath: cfg.PublicKeyPath,
		identityPath:  cfg.PrivateKeyPath,
	}
}

// Setup generates a key pair. Existing keys are never replaced.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return gt.Errorf(gt.KindValidation, "encryption setup", "passphrase must not be empty")
	}
	if e.IsConfigured() {
		return fmt.Errorf("keys already exist at %s", e.identityPath)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	sealed, err := sealIdentity(id, passphrase)
	if err != nil {
		return err
	}
	if err := e.writeKeys(sealed, id.Recipient().String()); err != nil {
		return err
	}

	e.mu.Lock()
	e.recipient = id.Recipient()
	e.mu.Unlock()
	return nil
}

// writeKeys stores the sealed identity before the recipient, so a recipient
// file never exists without its identity.
func (e *AgeEncryptor) writeKeys(sealedIdentity []byte, recipient string) error {
	for _, p := range []string{e.identityPath, e.recipientPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}
	if err := os.WriteFile(e.identityPath, sealedIdentity, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(e.recipientPath, []byte(recipient+"\n"), 0o644); err != nil {
		_ = os.Remove(e.identityPath)
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	rcpt, err := e.snapshotRecipient()
	if err != nil {
		return err
	}
	return encryptTo(w, r, rcpt)
}

// Unlock opens the sealed identity. A wrong passphrase fails with gt.ErrAuth.
func (e *AgeEncryptor) Unlock(passphrase string) (gt.DecryptionContext, error) {
	sealed, err := os.ReadFile(e.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}
	id, err := unsealIdentity(sealed, passphrase)
	if err != nil {
		return nil, err
	}
	return &AgeDecryptionContext{identity: id}, nil
}

func (e *AgeEncryptor) IsConfigured() bool {
	_, errR := os.Stat(e.recipientPath)
	_, errI := os.Stat(e.identityPath)
	return errR == nil && errI == nil
}

// snapshotRecipient parses the recipient file on first use.
func (e *AgeEncryptor) snapshotRecipient() (age.Recipient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recipient != nil {
		return e.recipient, nil
	}

	raw, err := os.ReadFile(e.recipientPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	rcpt, err := age.ParseX25519Recipient(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", e.recipientPath, err)
	}
	e.recipient = rcpt
	return rcpt, nil
}

func sealIdentity(id *age.X25519Identity, passphrase string) ([]byte, error) {
	rcpt, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)
	if err := encryptTo(aw, strings.NewReader(id.String()+"\n"), rcpt); err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("armoring private key: %w", err)
	}
	return buf.Bytes(), nil
}

func unsealIdentity(sealed []byte, passphrase string) (age.Identity, error) {
	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	var plain bytes.Buffer
	err = decryptTo(&plain, armor.NewReader(bytes.NewReader(sealed)), scrypt)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) || errors.Is(err, age.ErrIncorrectIdentity) {
			return nil, gt.Errorf(gt.KindAuth, "unlock private key", "incorrect passphrase")
		}
		return nil, fmt.Errorf("opening private key: %w", err)
	}
	id, err := age.ParseX25519Identity(strings.TrimSpace(plain.String()))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return id, nil
}

func encryptTo(dst io.Writer, src io.Reader, rcpt age.Recipient) error {
	aw, err := age.Encrypt(dst, rcpt)
	if err != nil {
		return fmt.Errorf("starting age stream: %w", err)
	}
	if _, err := io.Copy(aw, src); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("finishing age stream: %w", err)
	}
	return nil
}

func decryptTo(dst io.Writer, src io.Reader, id age.Identity) error {
	ar, err := age.Decrypt(src, id)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, ar); err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	return nil
}

// AgeDecryptionContext holds an unlocked identity for one restore.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ gt.DecryptionContext = (*AgeDecryptionContext)(nil)

func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	if err := decryptTo(w, r, c.identity); err != nil {
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return nil
}
