package gt

import (
	"context"
	"time"
)

// Collection keys in the key-value table.
const (
	KeyStudents        = "students"
	KeyGoals           = "goals"
	KeyAssessments     = "assessments"
	KeyWidgets         = "widgets"
	KeyLastSyncTime    = "last_sync_time"
	KeyLastLocalChange = "last_local_change"
	KeyStudentOrder    = "student_order"
	KeyActiveWidget    = "active_widget"
	KeyLegacyLogs      = "logs"
	KeyLegacyMigrated  = "legacy_migrated"
)

// Store is the local, authoritative record store.
//
// Observation logs are stored as individual records indexed by goal and by
// timestamp. Students, goals and settings are stored as whole-collection
// blobs under fixed keys: a put replaces the entire value atomically, but a
// read followed by a put is not atomic across callers.
//
// Underlying I/O faults are reported as ErrStorage.
type Store interface {
	// GetLog returns the log with the given ID, or (nil, nil) if absent.
	GetLog(ctx context.Context, id string) (*ObservationLog, error)
	// PutLog inserts or replaces a log.
	PutLog(ctx context.Context, log *ObservationLog) error
	// UpdateLog replaces an existing log. Returns ErrNotFound if it does not exist.
	UpdateLog(ctx context.Context, log *ObservationLog) error
	// DeleteLog removes a log. Returns ErrNotFound if it does not exist.
	DeleteLog(ctx context.Context, id string) error
	// LogsByGoal returns every log for a goal, in no particular order.
	LogsByGoal(ctx context.Context, goalID string) ([]*ObservationLog, error)
	// LogsInRange returns logs with start <= timestamp < end, in no particular order.
	LogsInRange(ctx context.Context, start, end time.Time) ([]*ObservationLog, error)
	// AllLogs returns every log, in no particular order.
	AllLogs(ctx context.Context) ([]*ObservationLog, error)
	// PatchLogMedia atomically replaces only the media of a log, and only if
	// the log's current media reference still equals expectedRef. It reports
	// whether the patch was applied. A missing log is not an error.
	PatchLogMedia(ctx context.Context, id, expectedRef string, media *Media) (bool, error)

	// GetCollection returns the raw value stored under key, or nil if unset.
	GetCollection(ctx context.Context, key string) ([]byte, error)
	// PutCollection replaces the value stored under key.
	PutCollection(ctx context.Context, key string, value []byte) error
	// DeleteCollection removes key. Missing keys are ignored.
	DeleteCollection(ctx context.Context, key string) error

	// ReplaceAll replaces every structured record with the snapshot's
	// contents in a single transaction. Settings other than the snapshot's
	// collections are left alone.
	ReplaceAll(ctx context.Context, snap *Snapshot) error

	// RecordSyncRun persists the start of a sync attempt and returns its ID.
	RecordSyncRun(ctx context.Context, trigger string, startedAt time.Time) (int64, error)
	// FinishSyncRun records the outcome of a sync attempt.
	FinishSyncRun(ctx context.Context, id int64, status string, detail string, finishedAt time.Time) error
	// SyncRuns returns the most recent sync attempts, newest first.
	SyncRuns(ctx context.Context, limit int) ([]*SyncRun, error)

	// DataVersion changes whenever another connection commits to the store.
	DataVersion(ctx context.Context) (int64, error)

	Close() error
}

// SyncRun is one persisted sync attempt.
type SyncRun struct {
	ID         int64
	Trigger    string
	Status     string
	Detail     string
	StartedAt  time.Time
	FinishedAt *time.Time
}
