package encryption

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"goaltrack/internal/config"
	"goaltrack/internal/gt"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(dir, "keys", "goaltrack.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "goaltrack.key"),
	})
}

func TestAgeEncryptor_Setup(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)

	if e.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
	if err := e.Setup(""); !errors.Is(err, gt.ErrValidation) {
		t.Errorf("Setup(\"\") error = %v, want ErrValidation", err)
	}
	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}
	sealed, err := os.ReadFile(e.identityPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(sealed, []byte("-----BEGIN AGE ENCRYPTED FILE-----")) {
		t.Errorf("private key file is not armored: %.40q", sealed)
	}
	if bytes.Contains(sealed, []byte("AGE-SECRET-KEY-")) {
		t.Error("private key stored in plaintext")
	}
	if err := e.Setup("another"); err == nil {
		t.Error("second Setup() replaced existing keys")
	}
}

func TestAgeEncryptor_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	snap := &gt.Snapshot{
		Version:  gt.SnapshotVersion,
		Students: []gt.Student{{ID: "s1", Name: "Ada"}},
		Goals:    []gt.Goal{},
		Logs:     []*gt.ObservationLog{},
	}
	data, err := gt.EncodeSnapshot(snap, e)
	if err != nil {
		t.Fatalf("EncodeSnapshot() error = %v", err)
	}
	if bytes.Contains(data, []byte("Ada")) {
		t.Error("encrypted snapshot contains plaintext")
	}

	if _, err := gt.DecodeSnapshot(data, nil); !errors.Is(err, gt.ErrSnapshotLocked) {
		t.Errorf("DecodeSnapshot() without key error = %v, want ErrSnapshotLocked", err)
	}

	dec, err := e.Unlock("correct horse")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	got, err := gt.DecodeSnapshot(data, dec)
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}
	if len(got.Students) != 1 || got.Students[0].Name != "Ada" {
		t.Errorf("Students = %+v", got.Students)
	}
}

func TestAgeEncryptor_EncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	if err := e.Setup("pw"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	dec, err := e.Unlock("pw")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	for _, input := range [][]byte{{}, []byte("hello"), bytes.Repeat([]byte("abcdef"), 10000)} {
		var encrypted, decrypted bytes.Buffer
		if err := e.Encrypt(bytes.NewReader(input), &encrypted); err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if err := dec.Decrypt(&encrypted, &decrypted); err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if !bytes.Equal(decrypted.Bytes(), input) {
			t.Errorf("round-trip failed: got %d bytes, want %d", decrypted.Len(), len(input))
		}
	}
}

func TestAgeEncryptor_UnlockWrongPassphrase(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	if err := e.Setup("correct-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := e.Unlock("wrong-passphrase"); !errors.Is(err, gt.ErrAuth) {
		t.Errorf("Unlock() with wrong passphrase error = %v, want ErrAuth", err)
	}
}

func TestAgeEncryptor_BeforeSetup(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	var buf bytes.Buffer
	if err := e.Encrypt(bytes.NewReader([]byte("data")), &buf); err == nil {
		t.Error("Encrypt() before Setup should return error")
	}
	if _, err := e.Unlock("passphrase"); err == nil {
		t.Error("Unlock() before Setup should return error")
	}
}

func TestTestEncryptor(t *testing.T) {
	t.Parallel()

	e := NewTestEncryptor("pw")
	var encrypted bytes.Buffer
	if err := e.Encrypt(bytes.NewReader([]byte(`{"version":1}`)), &encrypted); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if encrypted.Bytes()[0] == '{' {
		t.Error("test ciphertext looks like JSON")
	}

	if _, err := e.Unlock("nope"); !errors.Is(err, gt.ErrAuth) {
		t.Errorf("Unlock() wrong passphrase error = %v, want ErrAuth", err)
	}
	dec, err := e.Unlock("pw")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var out bytes.Buffer
	if err := dec.Decrypt(&encrypted, &out); err != nil || out.String() != `{"version":1}` {
		t.Errorf("Decrypt() = %q, %v", out.String(), err)
	}
	if err := dec.Decrypt(bytes.NewReader([]byte("plain")), &out); err == nil {
		t.Error("Decrypt() accepted data without header")
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		typ     string
		wantNil bool
		wantErr bool
	}{
		{"", true, false},
		{"none", true, false},
		{"age", false, false},
		{"test", false, false},
		{"rot13", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptorFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("NewEncryptorFromConfig() = %v, wantNil %v", got, tt.wantNil)
			}
		})
	}
}
