package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"go.uber.org/zap"

	"goaltrack/internal/config"
	"goaltrack/internal/database"
	"goaltrack/internal/encryption"
	"goaltrack/internal/fs"
	"goaltrack/internal/gateway"
	"goaltrack/internal/gt"
	"goaltrack/internal/metrics"
	"goaltrack/internal/staging"
)

// App is the application layer between the CLI and the tracker.
// It constructs all dependencies from config, exposes operations that accept
// raw CLI strings, and flushes pending sync work on Close.
type App struct {
	cfg        *config.Config
	store      *database.SQLiteStore
	stager     gt.MediaStager
	gateway    gt.Gateway
	encryptor  gt.Encryptor
	tracker    *gt.Tracker
	controller *gt.SyncController
	metrics    *metrics.SyncMetrics
	clock      gt.Clock
	zl         *zap.Logger
	logger     gt.Logger
	logCloser  io.Closer
	legacy     *database.LegacyResult
}

// Options carries process-level settings that do not belong in the config file.
type Options struct {
	// Operation names the CLI command being run. It is attached to every log line.
	Operation string
	// Stderr receives warnings when cfg.Log.Stderr is set. Nil disables it.
	Stderr io.Writer
	// Clock defaults to gt.RealClock.
	Clock gt.Clock
}

// New creates a fully wired App from the given config. Pending legacy data
// is migrated before the sync controller starts. The caller must call Close.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = gt.RealClock{}
	}

	opID := fmt.Sprintf("%s-%s", clock.Now().UTC().Format("20060102T150405Z"), opts.Operation)
	zl, logCloser, err := newLogger(cfg.Log, cfg.LogDir, opID, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := newZapAdapter(zl)

	a := &App{cfg: cfg, clock: clock, zl: zl, logger: logger, logCloser: logCloser}
	if err := a.wire(ctx); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	ids := gt.NewUUIDGenerator()

	store, err := database.NewStoreFromConfig(a.cfg.Store, a.clock)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	a.store = store
	if err := store.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	a.stager, err = staging.NewStagingAreaFromConfig(a.cfg.Staging, ids)
	if err != nil {
		return fmt.Errorf("creating staging area: %w", err)
	}

	a.gateway, err = gateway.NewGatewayFromConfig(ctx, a.cfg.Gateway, a.clock)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	a.legacy, err = database.MigrateLegacy(ctx, store, a.stager, ids, a.logger)
	if err != nil {
		return fmt.Errorf("migrating legacy logs: %w", err)
	}

	a.tracker = gt.NewTracker(store, a.stager, a.logger, a.clock, ids, a.cfg.Store.SeedDemoData)
	a.metrics = metrics.NewSyncMetrics()
	a.controller = gt.NewSyncController(a.tracker, a.gateway, a.encryptor, a.logger, a.clock, a.metrics, gt.SyncConfig{
		Debounce:           a.cfg.Sync.Debounce.Duration,
		StalenessTolerance: a.cfg.Sync.StalenessTolerance.Duration,
		SavedDisplay:       a.cfg.Sync.SavedDisplay.Duration,
		NetworkTimeout:     a.cfg.Sync.NetworkTimeout.Duration,
	})
	a.controller.Subscribe(func(s gt.SyncState) {
		a.logger.Debug("sync state changed", "state", s.String())
	})

	if err := a.controller.Start(ctx, a.cfg.Sync.CheckOnStart); err != nil {
		return fmt.Errorf("starting sync: %w", err)
	}
	return nil
}

func (a *App) Config() *config.Config { return a.cfg }
func (a *App) Tracker() *gt.Tracker { return a.tracker }
func (a *App) Controller() *gt.SyncController { return a.controller }
func (a *App) Store() *database.SQLiteStore { return a.store }
func (a *App) Gateway() gt.Gateway { return a.gateway }
func (a *App) Encryptor() gt.Encryptor { return a.encryptor }
func (a *App) Metrics() *metrics.SyncMetrics { return a.metrics }
func (a *App) Logger() gt.Logger { return a.logger }

// LegacyResult reports what the startup legacy migration did.
func (a *App) LegacyResult() *database.LegacyResult { return a.legacy }

// AddStudent adds a student. photo may be empty.
func (a *App) AddStudent(ctx context.Context, name, photo string) (*gt.Student, error) {
	return a.tracker.AddStudent(ctx, name, photo)
}

// AddGoal adds a goal for a student after checking the student exists.
func (a *App) AddGoal(ctx context.Context, studentID, title, description, icon string) (*gt.Goal, error) {
	if _, err := a.tracker.Student(ctx, studentID); err != nil {
		return nil, err
	}
	return a.tracker.AddGoal(ctx, gt.GoalInput{StudentID: studentID, Title: title, Description: description, Icon: icon})
}

// SetGoalStatus parses a raw status such as "on-hold" and applies it.
func (a *App) SetGoalStatus(ctx context.Context, goalID, rawStatus string) error {
	status, ok := gt.ParseGoalStatus(rawStatus)
	if !ok {
		return gt.Errorf(gt.KindValidation, "set goal status", "unknown status %q", rawStatus)
	}
	return a.tracker.SetGoalStatus(ctx, goalID, status)
}

// LogRequest is a log entry as typed on the command line.
type LogRequest struct {
	GoalID    string
	Value     string // percentage, e.g. "80" or "80%"
	Prompt    string
	At        string // empty means now; accepts RFC 3339, dates or phrases like "yesterday 3pm"
	Notes     string
	MediaPath string
}

// AddLog parses a LogRequest, reads any attachment from disk and records it.
func (a *App) AddLog(ctx context.Context, req LogRequest) (*gt.ObservationLog, error) {
	value, err := parseValue(req.Value)
	if err != nil {
		return nil, err
	}
	prompt, ok := gt.ParsePromptLevel(req.Prompt)
	if !ok {
		return nil, gt.Errorf(gt.KindValidation, "add log", "unknown prompt level %q", req.Prompt)
	}
	var at time.Time
	if req.At != "" {
		at, err = ParseWhen(req.At, a.clock.Now())
		if err != nil {
			return nil, err
		}
	}
	in := gt.LogInput{GoalID: req.GoalID, Value: value, PromptLevel: prompt, At: at, Notes: req.Notes}
	if req.MediaPath != "" {
		att, err := fs.ReadAttachment(req.MediaPath, a.cfg.Staging.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("reading attachment: %w", err)
		}
		in.Attachment = att
	}
	return a.tracker.AddLog(ctx, in)
}

// AttachMedia replaces the media of an existing log with a file from disk.
func (a *App) AttachMedia(ctx context.Context, logID, mediaPath string) (*gt.ObservationLog, error) {
	att, err := fs.ReadAttachment(mediaPath, a.cfg.Staging.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	return a.tracker.UpdateLog(ctx, logID, gt.LogUpdate{Attachment: att})
}

// Restore replaces local data with the remote backup. The passphrase is only
// used when the backup is encrypted.
func (a *App) Restore(ctx context.Context, passphrase string) error {
	var dec gt.DecryptionContext
	if a.encryptor != nil && passphrase != "" {
		var err error
		dec, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			return fmt.Errorf("unlocking key: %w", err)
		}
	}
	if err := a.keepPreRestoreCopy(); err != nil {
		return err
	}
	return a.controller.Restore(ctx, dec)
}

// PreRestoreSuffix names the copy of the database taken before a restore
// replaces local data.
const PreRestoreSuffix = ".pre-restore"

func (a *App) keepPreRestoreCopy() error {
	path := a.store.Path()
	if path == ":memory:" {
		return nil
	}
	dest := path + PreRestoreSuffix
	// VACUUM INTO refuses an existing target.
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing old pre-restore copy: %w", err)
	}
	if err := a.store.BackupTo(dest); err != nil {
		return fmt.Errorf("copying database before restore: %w", err)
	}
	a.logger.Info("kept pre-restore copy", "path", dest)
	return nil
}

// NeedsPassphrase reports whether restoring requires unlocking a private key.
func (a *App) NeedsPassphrase() bool {
	return a.encryptor != nil && a.encryptor.IsConfigured()
}

// Close flushes any armed sync, waits for media uploads and releases resources.
func (a *App) Close(ctx context.Context) error {
	if a.controller != nil {
		a.controller.Flush(ctx)
		a.controller.Close()
	}
	return a.closeResources()
}

func (a *App) closeResources() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	if c, ok := a.gateway.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing gateway: %w", err))
		}
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return errors.Join(errs...)
}

func parseValue(raw string) (float64, error) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, gt.Errorf(gt.KindValidation, "add log", "value %q is not a number", raw)
	}
	if v < 0 || v > 100 {
		return 0, gt.Errorf(gt.KindValidation, "add log", "value %v out of range 0-100", v)
	}
	return v, nil
}

var whenParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseWhen parses an observation time. Exact layouts are tried first, then
// natural-language phrases relative to now.
func ParseWhen(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	r, err := whenParser.Parse(s, now)
	if err != nil {
		return time.Time{}, gt.E(gt.KindValidation, "parse time", err)
	}
	if r == nil {
		return time.Time{}, gt.Errorf(gt.KindValidation, "parse time", "cannot understand %q", raw)
	}
	return r.Time, nil
}
