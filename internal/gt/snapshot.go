package gt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SnapshotVersion is written into every exported snapshot.
const SnapshotVersion = 1

// ErrSnapshotLocked is returned when an encrypted snapshot is decoded
// without a decryption context.
var ErrSnapshotLocked = errors.New("snapshot is encrypted: unlock with the passphrase to restore")

// Snapshot is the full export of all structured data. Media bytes are not
// embedded, only referenced.
type Snapshot struct {
	Version     int               `json:"version"`
	ExportedAt  int64             `json:"exported_at"`
	Students    []Student         `json:"students"`
	Goals       []Goal            `json:"goals"`
	Logs        []*ObservationLog `json:"logs"`
	Assessments json.RawMessage   `json:"assessments,omitempty"`
	Widgets     json.RawMessage   `json:"widgets,omitempty"`
}

// BuildSnapshot reads every structured record from the store.
func BuildSnapshot(ctx context.Context, store Store, now time.Time) (*Snapshot, error) {
	snap := &Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: now.UnixMilli(),
		Students:   []Student{},
		Goals:      []Goal{},
	}
	if err := readCollection(ctx, store, KeyStudents, &snap.Students); err != nil {
		return nil, err
	}
	if err := readCollection(ctx, store, KeyGoals, &snap.Goals); err != nil {
		return nil, err
	}
	for _, key := range []string{KeyAssessments, KeyWidgets} {
		raw, err := store.GetCollection(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		if len(raw) == 0 {
			continue
		}
		if key == KeyAssessments {
			snap.Assessments = raw
		} else {
			snap.Widgets = raw
		}
	}
	logs, err := store.AllLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading logs: %w", err)
	}
	if logs == nil {
		logs = []*ObservationLog{}
	}
	snap.Logs = logs
	return snap, nil
}

// EncodeSnapshot serializes the snapshot and encrypts it when enc is non-nil.
func EncodeSnapshot(snap *Snapshot, enc Encryptor) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	if enc == nil {
		return data, nil
	}
	var buf bytes.Buffer
	if err := enc.Encrypt(bytes.NewReader(data), &buf); err != nil {
		return nil, fmt.Errorf("encrypting snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot reverses EncodeSnapshot. A plaintext snapshot decodes
// without dec; an encrypted one requires it.
func DecodeSnapshot(data []byte, dec DecryptionContext) (*Snapshot, error) {
	const op = "decode snapshot"
	if !looksLikeJSON(data) {
		if dec == nil {
			return nil, ErrSnapshotLocked
		}
		var buf bytes.Buffer
		if err := dec.Decrypt(bytes.NewReader(data), &buf); err != nil {
			return nil, E(KindInvalidFormat, op, fmt.Errorf("decrypting: %w", err))
		}
		data = buf.Bytes()
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, E(KindInvalidFormat, op, err)
	}
	if snap.Version > SnapshotVersion {
		return nil, Errorf(KindInvalidFormat, op, "snapshot version %d is newer than supported version %d", snap.Version, SnapshotVersion)
	}
	if snap.Students == nil {
		snap.Students = []Student{}
	}
	if snap.Goals == nil {
		snap.Goals = []Goal{}
	}
	return &snap, nil
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func readCollection(ctx context.Context, store Store, key string, dst any) error {
	raw, err := store.GetCollection(ctx, key)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return E(KindInvalidFormat, "read "+key, err)
	}
	return nil
}
