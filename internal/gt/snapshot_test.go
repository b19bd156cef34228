package gt_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"goaltrack/internal/encryption"
	"goaltrack/internal/gt"
	"goaltrack/internal/testutil"
)

func TestBuildSnapshot(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t, testutil.EnvOptions{})
	tr := env.Tracker

	s, _ := tr.AddStudent(ctx, "Ava", "")
	g, _ := tr.AddGoal(ctx, gt.GoalInput{StudentID: s.ID, Title: "G"})
	if _, err := tr.AddLog(ctx, gt.LogInput{GoalID: g.ID, Value: 64}); err != nil {
		t.Fatalf("AddLog() error = %v", err)
	}
	if err := tr.PutRawCollection(ctx, gt.KeyWidgets, json.RawMessage(`{"layout":["trend"]}`)); err != nil {
		t.Fatalf("PutRawCollection() error = %v", err)
	}

	snap, err := gt.BuildSnapshot(ctx, env.Store, env.Clock.Now())
	if err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}
	if snap.Version != gt.SnapshotVersion || snap.ExportedAt != env.Clock.Now().UnixMilli() {
		t.Errorf("header = version %d exported %d", snap.Version, snap.ExportedAt)
	}
	if len(snap.Students) != 1 || len(snap.Goals) != 1 || len(snap.Logs) != 1 {
		t.Errorf("snapshot has %d students, %d goals, %d logs", len(snap.Students), len(snap.Goals), len(snap.Logs))
	}
	if snap.Assessments != nil {
		t.Errorf("Assessments = %s, want omitted", snap.Assessments)
	}
	if string(snap.Widgets) != `{"layout":["trend"]}` {
		t.Errorf("Widgets = %s", snap.Widgets)
	}
}

func TestEncodeDecodeSnapshot(t *testing.T) {
	snap := &gt.Snapshot{
		Version:  gt.SnapshotVersion,
		Students: []gt.Student{{ID: "s1", Name: "Ava"}},
		Goals:    []gt.Goal{},
		Logs:     []*gt.ObservationLog{{ID: "l1", GoalID: "g1", Value: 72, PromptLevel: gt.PromptModeling, Timestamp: 1}},
	}

	t.Run("plaintext", func(t *testing.T) {
		data, err := gt.EncodeSnapshot(snap, nil)
		if err != nil {
			t.Fatalf("EncodeSnapshot() error = %v", err)
		}
		got, err := gt.DecodeSnapshot(data, nil)
		if err != nil {
			t.Fatalf("DecodeSnapshot() error = %v", err)
		}
		if len(got.Logs) != 1 || got.Logs[0].Value != 72 || got.Logs[0].PromptLevel != gt.PromptModeling {
			t.Errorf("logs = %+v", got.Logs)
		}
	})

	t.Run("encrypted requires unlock", func(t *testing.T) {
		enc := encryption.NewTestEncryptor("")
		data, err := gt.EncodeSnapshot(snap, enc)
		if err != nil {
			t.Fatalf("EncodeSnapshot() error = %v", err)
		}
		if _, err := gt.DecodeSnapshot(data, nil); !errors.Is(err, gt.ErrSnapshotLocked) {
			t.Errorf("DecodeSnapshot(nil) error = %v, want ErrSnapshotLocked", err)
		}
		dec, _ := enc.Unlock("anything")
		got, err := gt.DecodeSnapshot(data, dec)
		if err != nil {
			t.Fatalf("DecodeSnapshot() error = %v", err)
		}
		if len(got.Students) != 1 || got.Students[0].Name != "Ava" {
			t.Errorf("students = %+v", got.Students)
		}
	})

	t.Run("legacy accuracy field", func(t *testing.T) {
		got, err := gt.DecodeSnapshot([]byte(`{"version":1,"logs":[{"id":"l1","goal_id":"g1","accuracy":72,"timestamp":5}]}`), nil)
		if err != nil {
			t.Fatalf("DecodeSnapshot() error = %v", err)
		}
		if got.Logs[0].Value != 72 {
			t.Errorf("Value = %v, want 72", got.Logs[0].Value)
		}
		if got.Students == nil || got.Goals == nil {
			t.Error("missing collections decoded as nil")
		}
	})

	t.Run("rejects newer version", func(t *testing.T) {
		if _, err := gt.DecodeSnapshot([]byte(`{"version":99}`), nil); !errors.Is(err, gt.ErrInvalidFormat) {
			t.Errorf("DecodeSnapshot() error = %v, want ErrInvalidFormat", err)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := gt.DecodeSnapshot([]byte(`{"version":`), nil); !errors.Is(err, gt.ErrInvalidFormat) {
			t.Errorf("DecodeSnapshot() error = %v, want ErrInvalidFormat", err)
		}
	})
}
