package database

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"
	"time"

	"goaltrack/internal/gt"
)

// legacyLog is one entry of the flat log array older versions kept under
// the "logs" key. Field names varied between releases, so both spellings
// are accepted.
type legacyLog struct {
	ID              string          `json:"id"`
	GoalID          string          `json:"goalId"`
	GoalIDSnake     string          `json:"goal_id"`
	Value           *float64        `json:"value"`
	Accuracy        *float64        `json:"accuracy"`
	PromptLevel     string          `json:"promptLevel"`
	PromptSnake     string          `json:"prompt_level"`
	Timestamp       json.RawMessage `json:"timestamp"`
	Notes           string          `json:"notes"`
	MediaURL        string          `json:"mediaUrl"`
	MediaReference  string          `json:"media_reference"`
	MediaType       string          `json:"mediaType"`
	MediaKind       string          `json:"media_kind"`
	MediaFilename   string          `json:"mediaName"`
	MediaFilenameSn string          `json:"media_filename"`
}

// LegacyResult summarizes a legacy migration.
type LegacyResult struct {
	AlreadyDone  bool
	Imported     int
	Skipped      int
	MediaMissing int
}

// MigrateLegacy moves logs from the legacy array blob into the keyed log
// table. It runs at most once: completion is recorded in the
// legacy_migrated setting in the same transaction as the import. A payload
// that cannot be parsed fails with gt.ErrInvalidFormat and changes nothing.
//
// stager may be nil; embedded data: media is then marked missing.
func MigrateLegacy(ctx context.Context, store *SQLiteStore, stager gt.MediaStager, idgen gt.IDGenerator, logger gt.Logger) (*LegacyResult, error) {
	done, err := store.GetCollection(ctx, gt.KeyLegacyMigrated)
	if err != nil {
		return nil, fmt.Errorf("reading migration flag: %w", err)
	}
	if len(done) > 0 {
		return &LegacyResult{AlreadyDone: true}, nil
	}

	raw, err := store.GetCollection(ctx, gt.KeyLegacyLogs)
	if err != nil {
		return nil, fmt.Errorf("reading legacy logs: %w", err)
	}
	var entries []legacyLog
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, gt.E(gt.KindInvalidFormat, "migrate legacy logs", err)
		}
	}

	res := &LegacyResult{}
	var logs []*gt.ObservationLog
	var staged []*gt.Media
	for i, e := range entries {
		l, err := normalizeLegacy(e, idgen)
		if err != nil {
			logger.Warn("skipping legacy log", "index", i, "error", err)
			res.Skipped++
			continue
		}
		if l.Media != nil && l.Media.State == gt.MediaLocal {
			m, err := restageDataURI(ctx, stager, l.Media)
			if err != nil {
				logger.Warn("embedded legacy media unreadable, marking missing", "log_id", l.ID, "error", err)
				l.Media.State = gt.MediaMissing
			} else {
				l.Media = m
				staged = append(staged, m)
			}
		}
		if l.Media != nil && l.Media.State == gt.MediaMissing {
			res.MediaMissing++
		}
		logs = append(logs, l)
	}

	if err := store.importLegacyLogs(ctx, logs); err != nil {
		for _, m := range staged {
			_ = stager.Release(m.Reference)
		}
		return nil, err
	}
	res.Imported = len(logs)
	logger.Info("legacy logs migrated", "imported", res.Imported, "skipped", res.Skipped, "media_missing", res.MediaMissing)
	return res, nil
}

func normalizeLegacy(e legacyLog, idgen gt.IDGenerator) (*gt.ObservationLog, error) {
	goalID := firstNonEmpty(e.GoalID, e.GoalIDSnake)
	if goalID == "" {
		return nil, fmt.Errorf("missing goal id")
	}
	ts, err := parseLegacyTimestamp(e.Timestamp)
	if err != nil {
		return nil, err
	}
	id := e.ID
	if id == "" {
		id = idgen.New()
	}
	prompt, ok := gt.ParsePromptLevel(firstNonEmpty(e.PromptLevel, e.PromptSnake))
	if !ok {
		prompt = gt.PromptIndependent
	}
	l := &gt.ObservationLog{
		ID:          id,
		GoalID:      goalID,
		Value:       gt.NormalizeValue(e.Value, e.Accuracy),
		PromptLevel: prompt,
		Timestamp:   ts,
		Notes:       e.Notes,
	}
	if ref := firstNonEmpty(e.MediaURL, e.MediaReference); ref != "" {
		l.Media = classifyLegacyMedia(ref, firstNonEmpty(e.MediaType, e.MediaKind), firstNonEmpty(e.MediaFilename, e.MediaFilenameSn))
	}
	return l, nil
}

// classifyLegacyMedia sorts an old string reference into a lifecycle state
// by its shape: http(s) URLs were already uploaded, data: URIs carry the
// bytes, and anything else (blob: handles) died with the old process.
func classifyLegacyMedia(ref, kind, filename string) *gt.Media {
	m := &gt.Media{Reference: ref, Filename: filename}
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		m.State = gt.MediaRemote
		if m.Filename == "" {
			if u, err := url.Parse(ref); err == nil {
				m.Filename = u.Query().Get("name")
			}
		}
	case strings.HasPrefix(ref, "data:"):
		m.State = gt.MediaLocal
		if mt, _, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ";"); ok {
			m.MimeType = mt
		}
	default:
		m.State = gt.MediaMissing
	}
	switch {
	case kind == string(gt.MediaVideo) || kind == string(gt.MediaImage):
		m.Kind = gt.MediaKind(kind)
	case m.MimeType != "":
		m.Kind = gt.MediaKindFor(m.MimeType)
	default:
		m.Kind = gt.MediaImage
	}
	return m
}

func restageDataURI(ctx context.Context, stager gt.MediaStager, m *gt.Media) (*gt.Media, error) {
	if stager == nil {
		return nil, fmt.Errorf("no media staging configured")
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(m.Reference, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("unsupported data URI encoding")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding data URI: %w", err)
	}
	name := m.Filename
	if name == "" {
		name = "attachment"
		if exts, _ := mime.ExtensionsByType(m.MimeType); len(exts) > 0 {
			name += exts[0]
		}
	}
	staged, err := stager.Stage(ctx, name, m.MimeType, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	staged.Kind = m.Kind
	return staged, nil
}

// parseLegacyTimestamp accepts epoch milliseconds as a number or string,
// or an RFC 3339 string.
func parseLegacyTimestamp(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing timestamp")
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if ms, err := n.Int64(); err == nil {
			return ms, nil
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), nil
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unreadable timestamp %s", raw)
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("unreadable timestamp %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// importLegacyLogs inserts logs without overwriting existing IDs, sets the
// migration flag and, when anything was imported, the last local change
// time, all in one transaction.
func (s *SQLiteStore) importLegacyLogs(ctx context.Context, logs []*gt.ObservationLog) error {
	const op = "import legacy logs"
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr(op, fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	for _, l := range logs {
		row := rowFromLog(l)
		_, err := tx.NamedExecContext(ctx, `INSERT INTO observation_logs (`+logColumns+`)
			VALUES (:id, :goal_id, :value, :accuracy, :prompt_level, :timestamp, :notes,
				:media_reference, :media_filename, :media_mime_type, :media_kind, :media_state)
			ON CONFLICT(id) DO NOTHING`, row)
		if err != nil {
			return storageErr(op, fmt.Errorf("inserting log %s: %w", l.ID, err))
		}
	}
	now := s.clock.Now()
	stamp := []byte(strconv.FormatInt(now.UnixMilli(), 10))
	if err := putKV(ctx, tx, gt.KeyLegacyMigrated, stamp, now); err != nil {
		return storageErr(op, fmt.Errorf("setting migration flag: %w", err))
	}
	// Imported logs are unsynced local work.
	if len(logs) > 0 {
		if err := putKV(ctx, tx, gt.KeyLastLocalChange, stamp, now); err != nil {
			return storageErr(op, fmt.Errorf("recording local change: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr(op, fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}
