package testutil

import (
	"context"
	"testing"
	"time"

	"goaltrack/internal/database"
	"goaltrack/internal/gateway"
	"goaltrack/internal/gt"
	"goaltrack/internal/staging"
)

// DefaultStagingMaxSize is the staging limit used by test environments (10MB).
const DefaultStagingMaxSize = 10 * 1024 * 1024

// NewTestStore creates an in-memory SQLite store with migrations applied.
// The store is closed when the test completes.
func NewTestStore(t *testing.T, clock gt.Clock) *database.SQLiteStore {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Env is a tracker and sync controller wired to in-memory dependencies.
type Env struct {
	Clock      *StubClock
	IDs        *StubIDGenerator
	Store      *database.SQLiteStore
	Stager     gt.MediaStager
	Gateway    *gateway.MemoryGateway
	Tracker    *gt.Tracker
	Controller *gt.SyncController
}

// EnvOptions customizes NewEnv. The zero value gives no demo seeding, no
// encryption and the default sync timings.
type EnvOptions struct {
	SeedDemo  bool
	Encryptor gt.Encryptor
	Metrics   gt.SyncMetrics
	Sync      *gt.SyncConfig
}

// NewEnv builds an Env on a FixedClock. The controller is closed when the
// test completes.
func NewEnv(t *testing.T, opts EnvOptions) *Env {
	t.Helper()

	clock := FixedClock()
	ids := NewStubIDGenerator()
	store := NewTestStore(t, clock)
	stager := staging.NewMemoryStagingArea(DefaultStagingMaxSize, ids)
	gw := gateway.NewMemoryGateway(clock)
	tracker := gt.NewTracker(store, stager, gt.NewNopLogger(), clock, ids, opts.SeedDemo)

	cfg := gt.DefaultSyncConfig()
	if opts.Sync != nil {
		cfg = *opts.Sync
	}
	controller := gt.NewSyncController(tracker, gw, opts.Encryptor, gt.NewNopLogger(), clock, opts.Metrics, cfg)
	t.Cleanup(controller.Close)

	return &Env{
		Clock:      clock,
		IDs:        ids,
		Store:      store,
		Stager:     stager,
		Gateway:    gw,
		Tracker:    tracker,
		Controller: controller,
	}
}

// WaitFor polls cond until it holds or five seconds pass.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// WaitForUploads waits until no media upload is in flight.
func (e *Env) WaitForUploads(t *testing.T) {
	t.Helper()
	WaitFor(t, "media uploads", func() bool { return len(e.Controller.Uploading()) == 0 })
}

// Background returns a context cancelled when the test completes.
func Background(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
