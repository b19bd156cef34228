package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"goaltrack/internal/database/migrations"
	"goaltrack/internal/gt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements gt.Store on SQLite.
type SQLiteStore struct {
	db    *sqlx.DB
	path  string
	clock gt.Clock
}

// NewSQLiteStore opens the database at path and applies pending migrations.
// path can be a file path or ":memory:".
func NewSQLiteStore(path string, clock gt.Clock) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &SQLiteStore{db: db, path: path, clock: clock}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection without migrating it.
// The caller is responsible for the schema.
func NewSQLiteStoreFromDB(db *sql.DB, clock gt.Clock) *SQLiteStore {
	return &SQLiteStore{db: sqlx.NewDb(db, "sqlite3"), clock: clock}
}

// OpenConnection opens and configures a SQLite connection.
// path can be a file path or ":memory:".
func OpenConnection(path string) (*sqlx.DB, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database lives per connection, and
	// PRAGMA data_version only reports commits by other connections.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

type logRow struct {
	ID             string          `db:"id"`
	GoalID         string          `db:"goal_id"`
	Value          sql.NullFloat64 `db:"value"`
	Accuracy       sql.NullFloat64 `db:"accuracy"`
	PromptLevel    string          `db:"prompt_level"`
	Timestamp      int64           `db:"timestamp"`
	Notes          string          `db:"notes"`
	MediaReference sql.NullString  `db:"media_reference"`
	MediaFilename  string          `db:"media_filename"`
	MediaMimeType  string          `db:"media_mime_type"`
	MediaKind      string          `db:"media_kind"`
	MediaState     string          `db:"media_state"`
}

const logColumns = `id, goal_id, value, accuracy, prompt_level, timestamp, notes,
	media_reference, media_filename, media_mime_type, media_kind, media_state`

// toLog converts a row, deriving value from the deprecated accuracy column
// when value is NULL.
func (r *logRow) toLog() *gt.ObservationLog {
	var value, accuracy *float64
	if r.Value.Valid {
		value = &r.Value.Float64
	}
	if r.Accuracy.Valid {
		accuracy = &r.Accuracy.Float64
	}
	prompt := gt.PromptLevel(r.PromptLevel)
	if prompt == "" {
		prompt = gt.PromptIndependent
	}
	l := &gt.ObservationLog{
		ID:          r.ID,
		GoalID:      r.GoalID,
		Value:       gt.NormalizeValue(value, accuracy),
		PromptLevel: prompt,
		Timestamp:   r.Timestamp,
		Notes:       r.Notes,
	}
	if r.MediaReference.Valid && r.MediaReference.String != "" {
		l.Media = &gt.Media{
			Reference: r.MediaReference.String,
			Filename:  r.MediaFilename,
			MimeType:  r.MediaMimeType,
			Kind:      gt.MediaKind(r.MediaKind),
			State:     gt.MediaState(r.MediaState),
		}
	}
	return l
}

func rowFromLog(l *gt.ObservationLog) logRow {
	r := logRow{
		ID:          l.ID,
		GoalID:      l.GoalID,
		Value:       sql.NullFloat64{Float64: l.Value, Valid: true},
		PromptLevel: string(l.PromptLevel),
		Timestamp:   l.Timestamp,
		Notes:       l.Notes,
	}
	if l.Media != nil {
		r.MediaReference = sql.NullString{String: l.Media.Reference, Valid: true}
		r.MediaFilename = l.Media.Filename
		r.MediaMimeType = l.Media.MimeType
		r.MediaKind = string(l.Media.Kind)
		r.MediaState = string(l.Media.State)
	}
	return r
}

func storageErr(op string, err error) error {
	return gt.E(gt.KindStorage, op, err)
}

// Log operations

func (s *SQLiteStore) GetLog(ctx context.Context, id string) (*gt.ObservationLog, error) {
	var row logRow
	err := s.db.GetContext(ctx, &row, `SELECT `+logColumns+` FROM observation_logs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, storageErr("get log", err)
	}
	return row.toLog(), nil
}

const upsertLog = `INSERT INTO observation_logs (` + logColumns + `)
	VALUES (:id, :goal_id, :value, :accuracy, :prompt_level, :timestamp, :notes,
		:media_reference, :media_filename, :media_mime_type, :media_kind, :media_state)
	ON CONFLICT(id) DO UPDATE SET
		goal_id = excluded.goal_id,
		value = excluded.value,
		prompt_level = excluded.prompt_level,
		timestamp = excluded.timestamp,
		notes = excluded.notes,
		media_reference = excluded.media_reference,
		media_filename = excluded.media_filename,
		media_mime_type = excluded.media_mime_type,
		media_kind = excluded.media_kind,
		media_state = excluded.media_state`

func (s *SQLiteStore) PutLog(ctx context.Context, l *gt.ObservationLog) error {
	if _, err := s.db.NamedExecContext(ctx, upsertLog, rowFromLog(l)); err != nil {
		return storageErr("put log", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateLog(ctx context.Context, l *gt.ObservationLog) error {
	res, err := s.db.NamedExecContext(ctx, `UPDATE observation_logs SET
		goal_id = :goal_id,
		value = :value,
		prompt_level = :prompt_level,
		timestamp = :timestamp,
		notes = :notes,
		media_reference = :media_reference,
		media_filename = :media_filename,
		media_mime_type = :media_mime_type,
		media_kind = :media_kind,
		media_state = :media_state
		WHERE id = :id`, rowFromLog(l))
	if err != nil {
		return storageErr("update log", err)
	}
	return requireRow(res, "update log", l.ID)
}

func (s *SQLiteStore) DeleteLog(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM observation_logs WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete log", err)
	}
	return requireRow(res, "delete log", id)
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return gt.Errorf(gt.KindNotFound, op, "log %s", id)
	}
	return nil
}

func (s *SQLiteStore) LogsByGoal(ctx context.Context, goalID string) ([]*gt.ObservationLog, error) {
	return s.selectLogs(ctx, "logs by goal", `SELECT `+logColumns+` FROM observation_logs WHERE goal_id = ?`, goalID)
}

func (s *SQLiteStore) LogsInRange(ctx context.Context, start, end time.Time) ([]*gt.ObservationLog, error) {
	return s.selectLogs(ctx, "logs in range",
		`SELECT `+logColumns+` FROM observation_logs WHERE timestamp >= ? AND timestamp < ?`,
		start.UnixMilli(), end.UnixMilli())
}

func (s *SQLiteStore) AllLogs(ctx context.Context) ([]*gt.ObservationLog, error) {
	return s.selectLogs(ctx, "all logs", `SELECT `+logColumns+` FROM observation_logs`)
}

func (s *SQLiteStore) selectLogs(ctx context.Context, op, query string, args ...any) ([]*gt.ObservationLog, error) {
	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr(op, err)
	}
	logs := make([]*gt.ObservationLog, len(rows))
	for i := range rows {
		logs[i] = rows[i].toLog()
	}
	return logs, nil
}

// PatchLogMedia updates only the media columns, guarded by the current
// reference, in a single statement.
func (s *SQLiteStore) PatchLogMedia(ctx context.Context, id, expectedRef string, m *gt.Media) (bool, error) {
	row := rowFromLog(&gt.ObservationLog{ID: id, Media: m})
	res, err := s.db.ExecContext(ctx, `UPDATE observation_logs SET
		media_reference = ?, media_filename = ?, media_mime_type = ?, media_kind = ?, media_state = ?
		WHERE id = ? AND COALESCE(media_reference, '') = ?`,
		row.MediaReference, row.MediaFilename, row.MediaMimeType, row.MediaKind, row.MediaState,
		id, expectedRef)
	if err != nil {
		return false, storageErr("patch log media", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("patch log media", err)
	}
	return n == 1, nil
}

// Key-value operations

func (s *SQLiteStore) GetCollection(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("get "+key, err)
	}
	return value, nil
}

func (s *SQLiteStore) PutCollection(ctx context.Context, key string, value []byte) error {
	if err := putKV(ctx, s.db, key, value, s.clock.Now()); err != nil {
		return storageErr("put "+key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteCollection(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return storageErr("delete "+key, err)
	}
	return nil
}

func putKV(ctx context.Context, db sqlx.ExecerContext, key string, value []byte, now time.Time) error {
	if value == nil {
		value = []byte{}
	}
	_, err := db.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now.UnixMilli())
	return err
}

// ReplaceAll swaps every structured record for the snapshot's contents.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, snap *gt.Snapshot) error {
	const op = "replace all"
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr(op, fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	now := s.clock.Now()
	collections := map[string]any{
		gt.KeyStudents: snap.Students,
		gt.KeyGoals:    snap.Goals,
	}
	for key, v := range collections {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		if err := putKV(ctx, tx, key, data, now); err != nil {
			return storageErr(op, fmt.Errorf("writing %s: %w", key, err))
		}
	}
	raw := map[string][]byte{gt.KeyAssessments: snap.Assessments, gt.KeyWidgets: snap.Widgets}
	for key, data := range raw {
		if len(data) == 0 || string(data) == "null" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
				return storageErr(op, fmt.Errorf("clearing %s: %w", key, err))
			}
			continue
		}
		if err := putKV(ctx, tx, key, data, now); err != nil {
			return storageErr(op, fmt.Errorf("writing %s: %w", key, err))
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM observation_logs`); err != nil {
		return storageErr(op, fmt.Errorf("clearing logs: %w", err))
	}
	for _, l := range snap.Logs {
		if _, err := tx.NamedExecContext(ctx, upsertLog, rowFromLog(l)); err != nil {
			return storageErr(op, fmt.Errorf("inserting log %s: %w", l.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr(op, fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// Sync run history

type syncRunRow struct {
	ID          int64         `db:"id"`
	TriggeredBy string        `db:"triggered_by"`
	Status      string        `db:"status"`
	Detail      string        `db:"detail"`
	StartedAt   int64         `db:"started_at"`
	FinishedAt  sql.NullInt64 `db:"finished_at"`
}

func (s *SQLiteStore) RecordSyncRun(ctx context.Context, trigger string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO sync_runs (triggered_by, started_at) VALUES (?, ?)`,
		trigger, startedAt.UnixMilli())
	if err != nil {
		return 0, storageErr("record sync run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("record sync run", err)
	}
	return id, nil
}

func (s *SQLiteStore) FinishSyncRun(ctx context.Context, id int64, status, detail string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sync_runs SET status = ?, detail = ?, finished_at = ? WHERE id = ?`,
		status, detail, finishedAt.UnixMilli(), id)
	if err != nil {
		return storageErr("finish sync run", err)
	}
	return nil
}

func (s *SQLiteStore) SyncRuns(ctx context.Context, limit int) ([]*gt.SyncRun, error) {
	var rows []syncRunRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, triggered_by, status, detail, started_at, finished_at FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("list sync runs", err)
	}
	runs := make([]*gt.SyncRun, len(rows))
	for i, r := range rows {
		run := &gt.SyncRun{
			ID:        r.ID,
			Trigger:   r.TriggeredBy,
			Status:    r.Status,
			Detail:    r.Detail,
			StartedAt: time.UnixMilli(r.StartedAt),
		}
		if r.FinishedAt.Valid {
			t := time.UnixMilli(r.FinishedAt.Int64)
			run.FinishedAt = &t
		}
		runs[i] = run
	}
	return runs, nil
}

// DataVersion returns SQLite's data_version, which changes when another
// connection commits.
func (s *SQLiteStore) DataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.GetContext(ctx, &v, `PRAGMA data_version`); err != nil {
		return 0, storageErr("data version", err)
	}
	return v, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db.DB)
}

// BackupTo writes a complete copy of the database to destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return storageErr("backup database", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements gt.Store.
var _ gt.Store = (*SQLiteStore)(nil)
