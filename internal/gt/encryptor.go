package gt

import "io"

// Encryptor protects the snapshot before it leaves the machine.
// Encryption uses the public key only, so background sync needs no user
// intervention. Decryption requires a passphrase to unlock the private key,
// producing a DecryptionContext for the restore.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `goaltrack config init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if the keys exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for the duration
// of a restore. The unlocked key is never written to disk.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
