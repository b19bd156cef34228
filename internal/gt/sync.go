package gt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SyncState is the state of the remote backup as seen by this process.
type SyncState int

const (
	StateIdle SyncState = iota
	StateSyncing
	StateSaved
	StateError
	StateRemoteAhead
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateSaved:
		return "saved"
	case StateError:
		return "error"
	case StateRemoteAhead:
		return "remote_ahead"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// Trigger names what started a sync attempt.
type Trigger string

const (
	TriggerDirty     Trigger = "dirty"
	TriggerManual    Trigger = "manual"
	TriggerTimer     Trigger = "timer"
	TriggerReconnect Trigger = "reconnect"
	TriggerFlush     Trigger = "flush"
	TriggerKeepLocal Trigger = "keep_local"
	TriggerRestore   Trigger = "restore"
)

// ErrRemoteAhead is returned when an upload is refused because the remote
// backup is newer than local data. Resolve with Restore or KeepLocal.
var ErrRemoteAhead = errors.New("remote backup is newer than local data")

// SyncConfig tunes the controller's timing.
type SyncConfig struct {
	// Debounce is the quiet period after the last mutation before a sync.
	Debounce time.Duration
	// StalenessTolerance absorbs clock skew and latency when comparing the
	// remote modification time with the local last sync time.
	StalenessTolerance time.Duration
	// SavedDisplay is how long the saved state lasts before returning to idle.
	SavedDisplay time.Duration
	// NetworkTimeout bounds each gateway call. Zero means no timeout beyond
	// the transport's own.
	NetworkTimeout time.Duration
}

// DefaultSyncConfig returns the standard timings.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Debounce:           2 * time.Second,
		StalenessTolerance: 10 * time.Second,
		SavedDisplay:       2 * time.Second,
	}
}

// SyncStatus is a point-in-time view of the controller.
type SyncStatus struct {
	State          SyncState
	LastSync       time.Time
	LastError      error
	Dirty          bool
	Online         bool
	Authenticated  bool
	RemoteModified time.Time
	Uploading      []string
}

// SyncController reconciles the local store with the remote backup.
//
// Snapshot syncs are serialized. Media uploads run on their own goroutines
// and are tracked in the uploading set for status display.
type SyncController struct {
	tracker   *Tracker
	store     Store
	gateway   Gateway
	encryptor Encryptor
	logger    Logger
	clock     Clock
	metrics   SyncMetrics
	cfg       SyncConfig

	debouncer *Debouncer
	baseCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	syncMu sync.Mutex

	mu             sync.Mutex
	state          SyncState
	lastErr        error
	changeSeq      uint64
	syncedSeq      uint64
	online         bool
	remoteModified time.Time
	uploading      map[string]bool
	savedTimer     Timer
	listeners      map[int]func(SyncState)
	nextListener   int
}

// NewSyncController creates a controller and registers it as the tracker's
// dirty and media hooks. encryptor and metrics may be nil.
func NewSyncController(tracker *Tracker, gateway Gateway, encryptor Encryptor, logger Logger, clock Clock, metrics SyncMetrics, cfg SyncConfig) *SyncController {
	if metrics == nil {
		metrics = NopSyncMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &SyncController{
		tracker:   tracker,
		store:     tracker.Store(),
		gateway:   gateway,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		metrics:   metrics,
		cfg:       cfg,
		baseCtx:   ctx,
		cancel:    cancel,
		online:    true,
		uploading: make(map[string]bool),
		listeners: make(map[int]func(SyncState)),
	}
	c.debouncer = NewDebouncer(clock, cfg.Debounce, c.debounced)
	tracker.SetHooks(Hooks{
		Dirty:        c.MarkDirty,
		MediaStaged:  c.uploadInBackground,
		MediaDropped: c.dropMedia,
	})
	return c
}

// Start restores the persisted dirty flag and, when checkRemote is set and a
// session is present, runs an initial staleness check. Remote failures are
// recorded, not returned.
func (c *SyncController) Start(ctx context.Context, checkRemote bool) error {
	lastSync, err := c.tracker.LastSyncTime(ctx)
	if err != nil {
		return fmt.Errorf("reading last sync time: %w", err)
	}
	lastChange, err := c.tracker.LastLocalChange(ctx)
	if err != nil {
		return fmt.Errorf("reading last local change: %w", err)
	}
	if lastChange.After(lastSync) {
		c.mu.Lock()
		c.changeSeq++
		c.mu.Unlock()
	}
	if checkRemote && c.gateway.IsAuthenticated(ctx) {
		if _, err := c.CheckRemote(ctx); err != nil {
			c.logger.Warn("initial remote check failed", "error", err)
		}
	}
	return nil
}

// MarkDirty is the hook every mutation calls after its store write. It
// (re)arms the debounced sync.
func (c *SyncController) MarkDirty() {
	c.mu.Lock()
	c.changeSeq++
	c.mu.Unlock()
	c.debouncer.Trigger()
}

func (c *SyncController) debounced() {
	if !c.gateway.IsAuthenticated(c.baseCtx) {
		c.logger.Debug("debounced sync skipped: not authenticated")
		return
	}
	if err := c.runSync(c.baseCtx, TriggerDirty); err != nil && !errors.Is(err, ErrRemoteAhead) {
		c.logger.Warn("background sync failed", "error", err)
	}
}

// SyncNow uploads immediately, cancelling any armed debounce. Unlike the
// background triggers it returns the failure.
func (c *SyncController) SyncNow(ctx context.Context) error {
	c.debouncer.Cancel()
	if !c.gateway.IsAuthenticated(ctx) {
		return E(KindAuth, "sync now", errors.New("not signed in"))
	}
	return c.runSync(ctx, TriggerManual)
}

// Tick is the periodic trigger. It polls remote staleness and syncs when
// there is unsynced local work.
func (c *SyncController) Tick(ctx context.Context) {
	if !c.gateway.IsAuthenticated(ctx) {
		return
	}
	c.mu.Lock()
	wasOnline := c.online
	c.mu.Unlock()

	ahead, err := c.CheckRemote(ctx)
	if err != nil {
		c.logger.Debug("remote check failed", "error", err)
		return
	}
	if ahead {
		return
	}
	trigger := TriggerTimer
	if !wasOnline {
		trigger = TriggerReconnect
	}
	if !c.hasPendingWork(ctx) {
		return
	}
	if err := c.runSync(ctx, trigger); err != nil && !errors.Is(err, ErrRemoteAhead) {
		c.logger.Warn("periodic sync failed", "error", err)
	}
}

// SetOnline records a connectivity change. Going from offline to online
// while signed in runs a staleness check followed by a sync of pending work.
func (c *SyncController) SetOnline(ctx context.Context, online bool) {
	c.mu.Lock()
	was := c.online
	c.online = online
	c.mu.Unlock()
	if was || !online {
		return
	}
	c.logger.Info("connectivity restored")
	if !c.gateway.IsAuthenticated(ctx) {
		return
	}
	ahead, err := c.CheckRemote(ctx)
	if err != nil || ahead || !c.hasPendingWork(ctx) {
		return
	}
	if err := c.runSync(ctx, TriggerReconnect); err != nil && !errors.Is(err, ErrRemoteAhead) {
		c.logger.Warn("reconnect sync failed", "error", err)
	}
}

// CheckRemote compares the remote backup's modification time with the last
// successful sync and enters remote_ahead when the remote is newer by more
// than the tolerance. It reports whether the controller is remote_ahead.
func (c *SyncController) CheckRemote(ctx context.Context) (bool, error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	meta, err := c.snapshotMetadata(ctx)
	if err != nil {
		return c.State() == StateRemoteAhead, err
	}
	if meta == nil {
		return c.State() == StateRemoteAhead, nil
	}
	lastSync, err := c.tracker.LastSyncTime(ctx)
	if err != nil {
		return false, err
	}
	if !meta.LastModified.After(lastSync.Add(c.cfg.StalenessTolerance)) {
		return c.State() == StateRemoteAhead, nil
	}
	c.mu.Lock()
	c.remoteModified = meta.LastModified
	c.mu.Unlock()
	if c.State() != StateRemoteAhead {
		c.logger.Warn("remote backup is newer than local data",
			"remote_modified", meta.LastModified, "last_sync", lastSync)
		c.setState(StateRemoteAhead, nil)
	}
	return true, nil
}

// KeepLocal resolves remote_ahead by uploading local data over the remote backup.
func (c *SyncController) KeepLocal(ctx context.Context) error {
	c.debouncer.Cancel()
	if !c.gateway.IsAuthenticated(ctx) {
		return E(KindAuth, "keep local", errors.New("not signed in"))
	}
	return c.runSync(ctx, TriggerKeepLocal)
}

// Restore resolves remote_ahead by replacing all local structured data with
// the remote snapshot. dec may be nil for plaintext backups.
func (c *SyncController) Restore(ctx context.Context, dec DecryptionContext) error {
	c.debouncer.Cancel()
	if !c.gateway.IsAuthenticated(ctx) {
		return E(KindAuth, "restore", errors.New("not signed in"))
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	prev := c.State()
	runID := c.recordRun(ctx, TriggerRestore)
	started := c.clock.Now()
	c.setState(StateSyncing, nil)

	meta, err := c.restore(ctx, dec)
	c.finishRun(ctx, runID, TriggerRestore, started, err)
	if err != nil {
		if prev == StateRemoteAhead {
			c.setState(StateRemoteAhead, err)
		} else {
			c.setState(StateError, err)
		}
		return err
	}

	syncedAt := c.clock.Now()
	if meta != nil && meta.LastModified.After(syncedAt) {
		syncedAt = meta.LastModified
	}
	if err := c.tracker.setLastSyncTime(ctx, syncedAt); err != nil {
		c.setState(StateError, err)
		return fmt.Errorf("recording sync time: %w", err)
	}
	c.mu.Lock()
	c.syncedSeq = c.changeSeq
	c.mu.Unlock()
	c.logger.Info("restored local data from remote backup", "remote_modified", syncedAt)
	c.saved()
	return nil
}

func (c *SyncController) restore(ctx context.Context, dec DecryptionContext) (*SnapshotMetadata, error) {
	meta, err := c.snapshotMetadata(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	gctx, cancel := c.callContext(ctx)
	found, err := c.gateway.DownloadSnapshot(gctx, &buf)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("downloading snapshot: %w", err)
	}
	if !found {
		return nil, Errorf(KindRemote, "restore", "no remote backup exists")
	}
	snap, err := DecodeSnapshot(buf.Bytes(), dec)
	if err != nil {
		return nil, err
	}
	if err := c.tracker.replaceAll(ctx, snap); err != nil {
		return nil, fmt.Errorf("replacing local data: %w", err)
	}
	return meta, nil
}

// Flush waits for background media uploads, then runs a final sync if a
// debounced sync was armed or local changes are still unsynced. Call before
// the process exits.
func (c *SyncController) Flush(ctx context.Context) {
	c.wg.Wait()
	armed := c.debouncer.Cancel()
	c.mu.Lock()
	dirty := c.changeSeq != c.syncedSeq
	c.mu.Unlock()
	if !armed && !dirty {
		return
	}
	if !c.gateway.IsAuthenticated(ctx) {
		return
	}
	if err := c.runSync(ctx, TriggerFlush); err != nil && !errors.Is(err, ErrRemoteAhead) {
		c.logger.Warn("final sync failed", "error", err)
	}
}

// Close stops timers and cancels background uploads.
func (c *SyncController) Close() {
	c.debouncer.Cancel()
	c.mu.Lock()
	if c.savedTimer != nil {
		c.savedTimer.Stop()
	}
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// State returns the current sync state.
func (c *SyncController) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Uploading returns the IDs of logs whose media is being uploaded, sorted.
func (c *SyncController) Uploading() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploadingLocked()
}

func (c *SyncController) uploadingLocked() []string {
	ids := make([]string, 0, len(c.uploading))
	for id := range c.uploading {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Status returns a snapshot of the controller's state.
func (c *SyncController) Status(ctx context.Context) SyncStatus {
	lastSync, err := c.tracker.LastSyncTime(ctx)
	if err != nil {
		c.logger.Warn("reading last sync time failed", "error", err)
	}
	auth := c.gateway.IsAuthenticated(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return SyncStatus{
		State:          c.state,
		LastSync:       lastSync,
		LastError:      c.lastErr,
		Dirty:          c.changeSeq != c.syncedSeq,
		Online:         c.online,
		Authenticated:  auth,
		RemoteModified: c.remoteModified,
		Uploading:      c.uploadingLocked(),
	}
}

// Subscribe registers fn to be called on every state change. The returned
// function removes it.
func (c *SyncController) Subscribe(fn func(SyncState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *SyncController) setState(s SyncState, err error) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	if s == StateError || err != nil {
		c.lastErr = err
	} else if s == StateSaved {
		c.lastErr = nil
	}
	var fns []func(SyncState)
	if changed {
		for _, fn := range c.listeners {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()
	if !changed {
		return
	}
	c.metrics.StateChanged(s)
	for _, fn := range fns {
		fn(s)
	}
}

// saved enters the saved state and schedules the return to idle.
func (c *SyncController) saved() {
	c.setState(StateSaved, nil)
	timer := c.clock.AfterFunc(c.cfg.SavedDisplay, func() {
		c.mu.Lock()
		stillSaved := c.state == StateSaved
		c.mu.Unlock()
		if stillSaved {
			c.setState(StateIdle, nil)
		}
	})
	c.mu.Lock()
	if c.savedTimer != nil {
		c.savedTimer.Stop()
	}
	c.savedTimer = timer
	c.mu.Unlock()
}

// runSync uploads pending media and then the snapshot. Failures move the
// controller to the error state; nothing is retried here.
func (c *SyncController) runSync(ctx context.Context, trigger Trigger) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	if trigger != TriggerKeepLocal && c.State() == StateRemoteAhead {
		c.logger.Info("sync skipped: remote is ahead", "trigger", trigger)
		return ErrRemoteAhead
	}

	c.mu.Lock()
	seq := c.changeSeq
	c.mu.Unlock()

	runID := c.recordRun(ctx, trigger)
	started := c.clock.Now()
	c.setState(StateSyncing, nil)
	c.logger.Debug("sync started", "trigger", trigger)

	mediaErr := c.reconcileMedia(ctx)
	err := c.uploadSnapshot(ctx)
	if err == nil {
		if serr := c.tracker.setLastSyncTime(ctx, c.clock.Now()); serr != nil {
			err = fmt.Errorf("recording sync time: %w", serr)
		} else {
			c.mu.Lock()
			c.syncedSeq = seq
			c.mu.Unlock()
		}
	}
	if err == nil && mediaErr != nil {
		err = mediaErr
	}
	c.finishRun(ctx, runID, trigger, started, err)

	if err != nil {
		c.noteFailure(err)
		c.setState(StateError, err)
		return err
	}
	c.mu.Lock()
	c.online = true
	c.mu.Unlock()
	c.logger.Info("sync complete", "trigger", trigger)
	c.saved()
	return nil
}

func (c *SyncController) uploadSnapshot(ctx context.Context) error {
	snap, err := BuildSnapshot(ctx, c.store, c.clock.Now())
	if err != nil {
		return fmt.Errorf("building snapshot: %w", err)
	}
	data, err := EncodeSnapshot(snap, c.encryptor)
	if err != nil {
		return err
	}
	gctx, cancel := c.callContext(ctx)
	defer cancel()
	if err := c.gateway.UploadSnapshot(gctx, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("uploading snapshot: %w", err)
	}
	c.logger.Debug("snapshot uploaded", "bytes", len(data), "logs", len(snap.Logs))
	return nil
}

func (c *SyncController) snapshotMetadata(ctx context.Context) (*SnapshotMetadata, error) {
	gctx, cancel := c.callContext(ctx)
	defer cancel()
	meta, err := c.gateway.SnapshotMetadata(gctx)
	if err != nil {
		c.noteFailure(err)
		return nil, fmt.Errorf("reading snapshot metadata: %w", err)
	}
	c.mu.Lock()
	c.online = true
	c.mu.Unlock()
	return meta, nil
}

// noteFailure marks the controller offline on network errors.
func (c *SyncController) noteFailure(err error) {
	switch KindOf(err) {
	case KindNetwork:
		c.mu.Lock()
		c.online = false
		c.mu.Unlock()
	case KindAuth:
		c.logger.Warn("remote session rejected, sign in again to resume sync", "error", err)
	}
}

func (c *SyncController) hasPendingWork(ctx context.Context) bool {
	c.mu.Lock()
	dirty := c.changeSeq != c.syncedSeq
	failed := c.state == StateError
	c.mu.Unlock()
	if dirty || failed {
		return true
	}
	logs, err := c.store.AllLogs(ctx)
	if err != nil {
		return false
	}
	for _, l := range logs {
		if l.Media.Pending() {
			return true
		}
	}
	return false
}

func (c *SyncController) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.NetworkTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.NetworkTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *SyncController) recordRun(ctx context.Context, trigger Trigger) int64 {
	id, err := c.store.RecordSyncRun(ctx, string(trigger), c.clock.Now())
	if err != nil {
		c.logger.Warn("recording sync run failed", "error", err)
		return 0
	}
	return id
}

func (c *SyncController) finishRun(ctx context.Context, id int64, trigger Trigger, started time.Time, err error) {
	outcome, detail := "success", ""
	if err != nil {
		outcome, detail = "failed", err.Error()
	}
	c.metrics.SyncAttempt(trigger, outcome, c.clock.Now().Sub(started))
	if id == 0 {
		return
	}
	if ferr := c.store.FinishSyncRun(ctx, id, outcome, detail, c.clock.Now()); ferr != nil {
		c.logger.Warn("recording sync outcome failed", "error", ferr)
	}
}
