package gt

import "time"

// SyncMetrics receives sync controller events.
type SyncMetrics interface {
	SyncAttempt(trigger Trigger, outcome string, took time.Duration)
	MediaUpload(outcome string)
	StateChanged(state SyncState)
}

// NopSyncMetrics discards all events.
type NopSyncMetrics struct{}

func (NopSyncMetrics) SyncAttempt(Trigger, string, time.Duration) {}
func (NopSyncMetrics) MediaUpload(string)                         {}
func (NopSyncMetrics) StateChanged(SyncState)                     {}
