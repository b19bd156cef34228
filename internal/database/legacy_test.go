package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"goaltrack/internal/gt"
)

type seqIDs struct{ n int }

func (g *seqIDs) New() string {
	g.n++
	return fmt.Sprintf("gen-%d", g.n)
}

// mapStager keeps staged bytes in a map.
type mapStager struct {
	files map[string][]byte
}

func (s *mapStager) Stage(_ context.Context, name, mimeType string, r io.Reader) (*gt.Media, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	ref := fmt.Sprintf("mem:%d", len(s.files)+1)
	s.files[ref] = data
	return &gt.Media{Reference: ref, Filename: name, MimeType: mimeType, Kind: gt.MediaKindFor(mimeType), State: gt.MediaEphemeral}, nil
}

func (s *mapStager) Open(ref string) (io.ReadCloser, int64, error) {
	data, ok := s.files[ref]
	if !ok {
		return nil, 0, gt.ErrMediaMissing
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (s *mapStager) Release(ref string) error {
	if _, ok := s.files[ref]; !ok {
		return gt.ErrNotFound
	}
	delete(s.files, ref)
	return nil
}

const legacyPayload = `[
	{"id": "l1", "goalId": "g1", "accuracy": 72, "promptLevel": "gesture", "timestamp": 1700000000000, "notes": "old"},
	{"id": "l2", "goal_id": "g1", "value": 90, "timestamp": "2024-03-01T10:00:00Z", "mediaUrl": "https://cdn.example.com/a.jpg"},
	{"id": "l3", "goalId": "g2", "value": 50, "timestamp": 1700000001000, "mediaUrl": "blob:http://localhost/1234", "mediaType": "video"},
	{"id": "l4", "goalId": "g2", "value": 10, "timestamp": 1700000002000, "mediaUrl": "data:image/png;base64,aGVsbG8="},
	{"id": "l5", "value": 10, "timestamp": 1700000003000},
	{"goalId": "g3", "value": 40, "timestamp": "1700000004000"}
]`

func TestMigrateLegacy(t *testing.T) {
	ctx := context.Background()

	t.Run("imports and classifies", func(t *testing.T) {
		s := newTestStore(t)
		stager := &mapStager{}
		if err := s.PutCollection(ctx, gt.KeyLegacyLogs, []byte(legacyPayload)); err != nil {
			t.Fatalf("PutCollection() error = %v", err)
		}

		res, err := MigrateLegacy(ctx, s, stager, &seqIDs{}, gt.NewNopLogger())
		if err != nil {
			t.Fatalf("MigrateLegacy() error = %v", err)
		}
		if res.Imported != 5 || res.Skipped != 1 || res.MediaMissing != 1 {
			t.Errorf("result = %+v, want 5 imported, 1 skipped, 1 missing", res)
		}

		l1, _ := s.GetLog(ctx, "l1")
		if l1 == nil || l1.Value != 72 || l1.PromptLevel != gt.PromptGesture || l1.Notes != "old" {
			t.Errorf("l1 = %+v", l1)
		}
		l2, _ := s.GetLog(ctx, "l2")
		if l2 == nil || l2.PromptLevel != gt.PromptIndependent || l2.Timestamp != 1709287200000 {
			t.Errorf("l2 = %+v", l2)
		}
		if l2 != nil && (l2.Media == nil || l2.Media.State != gt.MediaRemote) {
			t.Errorf("l2.Media = %+v, want remote", l2.Media)
		}
		l3, _ := s.GetLog(ctx, "l3")
		if l3 == nil || l3.Media == nil || l3.Media.State != gt.MediaMissing || l3.Media.Kind != gt.MediaVideo {
			t.Errorf("l3 = %+v, want missing video", l3)
		}
		l4, _ := s.GetLog(ctx, "l4")
		if l4 == nil || l4.Media == nil || l4.Media.State != gt.MediaEphemeral || l4.Media.Kind != gt.MediaImage {
			t.Fatalf("l4 = %+v, want restaged image", l4)
		}
		rc, _, err := stager.Open(l4.Media.Reference)
		if err != nil {
			t.Fatalf("Open(restaged) error = %v", err)
		}
		body, _ := io.ReadAll(rc)
		if string(body) != "hello" {
			t.Errorf("restaged bytes = %q, want hello", body)
		}
		if gen, _ := s.GetLog(ctx, "gen-1"); gen == nil || gen.Timestamp != 1700000004000 {
			t.Errorf("generated-id log = %+v", gen)
		}
	})

	t.Run("records a local change", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.PutCollection(ctx, gt.KeyLegacyLogs, []byte(legacyPayload)); err != nil {
			t.Fatalf("PutCollection() error = %v", err)
		}
		if _, err := MigrateLegacy(ctx, s, &mapStager{}, &seqIDs{}, gt.NewNopLogger()); err != nil {
			t.Fatalf("MigrateLegacy() error = %v", err)
		}
		changed, err := s.GetCollection(ctx, gt.KeyLastLocalChange)
		if err != nil {
			t.Fatalf("GetCollection() error = %v", err)
		}
		flag, _ := s.GetCollection(ctx, gt.KeyLegacyMigrated)
		if len(changed) == 0 || string(changed) != string(flag) {
			t.Errorf("last_local_change = %q, want the migration time %q", changed, flag)
		}
	})

	t.Run("runs once", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.PutCollection(ctx, gt.KeyLegacyLogs, []byte(legacyPayload)); err != nil {
			t.Fatalf("PutCollection() error = %v", err)
		}
		if _, err := MigrateLegacy(ctx, s, &mapStager{}, &seqIDs{}, gt.NewNopLogger()); err != nil {
			t.Fatalf("first MigrateLegacy() error = %v", err)
		}
		if err := s.DeleteLog(ctx, "l1"); err != nil {
			t.Fatalf("DeleteLog() error = %v", err)
		}

		res, err := MigrateLegacy(ctx, s, &mapStager{}, &seqIDs{}, gt.NewNopLogger())
		if err != nil {
			t.Fatalf("second MigrateLegacy() error = %v", err)
		}
		if !res.AlreadyDone {
			t.Error("second run did not report AlreadyDone")
		}
		if l, _ := s.GetLog(ctx, "l1"); l != nil {
			t.Error("second run re-imported a deleted log")
		}
	})

	t.Run("does not overwrite existing logs", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.PutLog(ctx, sampleLog("l1", "g1", 5)); err != nil {
			t.Fatalf("PutLog() error = %v", err)
		}
		if err := s.PutCollection(ctx, gt.KeyLegacyLogs, []byte(legacyPayload)); err != nil {
			t.Fatalf("PutCollection() error = %v", err)
		}
		if _, err := MigrateLegacy(ctx, s, &mapStager{}, &seqIDs{}, gt.NewNopLogger()); err != nil {
			t.Fatalf("MigrateLegacy() error = %v", err)
		}
		l1, _ := s.GetLog(ctx, "l1")
		if l1.Value != 80 || l1.Timestamp != 5 {
			t.Errorf("existing l1 overwritten: %+v", l1)
		}
	})

	t.Run("invalid payload changes nothing", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.PutCollection(ctx, gt.KeyLegacyLogs, []byte(`{"not": "an array"`)); err != nil {
			t.Fatalf("PutCollection() error = %v", err)
		}

		_, err := MigrateLegacy(ctx, s, &mapStager{}, &seqIDs{}, gt.NewNopLogger())
		if !errors.Is(err, gt.ErrInvalidFormat) {
			t.Fatalf("MigrateLegacy() error = %v, want ErrInvalidFormat", err)
		}
		if flag, _ := s.GetCollection(ctx, gt.KeyLegacyMigrated); flag != nil {
			t.Error("migration flag set after failure")
		}
		if raw, _ := s.GetCollection(ctx, gt.KeyLegacyLogs); string(raw) != `{"not": "an array"` {
			t.Errorf("legacy payload modified: %s", raw)
		}
		if logs, _ := s.AllLogs(ctx); len(logs) != 0 {
			t.Errorf("AllLogs() = %d logs, want 0", len(logs))
		}
	})

	t.Run("no legacy data sets flag", func(t *testing.T) {
		s := newTestStore(t)
		res, err := MigrateLegacy(ctx, s, nil, &seqIDs{}, gt.NewNopLogger())
		if err != nil {
			t.Fatalf("MigrateLegacy() error = %v", err)
		}
		if res.Imported != 0 {
			t.Errorf("Imported = %d, want 0", res.Imported)
		}
		if flag, _ := s.GetCollection(ctx, gt.KeyLegacyMigrated); flag == nil {
			t.Error("migration flag not set")
		}
		if changed, _ := s.GetCollection(ctx, gt.KeyLastLocalChange); changed != nil {
			t.Errorf("last_local_change = %q with nothing imported", changed)
		}
	})
}

func TestParseLegacyTimestamp(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{`1700000000000`, 1700000000000, false},
		{`1700000000000.0`, 1700000000000, false},
		{`"1700000000000"`, 1700000000000, false},
		{`"2024-03-01T10:00:00Z"`, 1709287200000, false},
		{`null`, 0, true},
		{`"yesterday"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseLegacyTimestamp([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLegacyTimestamp(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLegacyTimestamp(%s) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}
