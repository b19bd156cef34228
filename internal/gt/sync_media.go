package gt

import (
	"context"
	"errors"
	"fmt"
)

// ownerNames maps goal IDs to student names as of now. Missing students or
// goals simply have no entry.
func (c *SyncController) ownerNames(ctx context.Context) map[string]string {
	var students []Student
	var goals []Goal
	if err := readCollection(ctx, c.store, KeyStudents, &students); err != nil {
		c.logger.Warn("reading students for media names failed", "error", err)
	}
	if err := readCollection(ctx, c.store, KeyGoals, &goals); err != nil {
		c.logger.Warn("reading goals for media names failed", "error", err)
	}
	names := make(map[string]string, len(students))
	for _, s := range students {
		names[s.ID] = s.Name
	}
	byGoal := make(map[string]string, len(goals))
	for _, g := range goals {
		if name, ok := names[g.StudentID]; ok {
			byGoal[g.ID] = name
		}
	}
	return byGoal
}

// reconcileMedia uploads every pending attachment that is not already being
// uploaded. Each failure leaves its log pending for the next sync; the
// first failure is returned after all logs were tried.
func (c *SyncController) reconcileMedia(ctx context.Context) error {
	logs, err := c.store.AllLogs(ctx)
	if err != nil {
		return fmt.Errorf("scanning logs for media: %w", err)
	}
	var names map[string]string
	var firstErr error
	for _, l := range logs {
		if !l.Media.Pending() {
			continue
		}
		if !c.beginUpload(l.ID) {
			continue
		}
		if names == nil {
			names = c.ownerNames(ctx)
		}
		err := c.uploadLogMedia(ctx, l, names[l.GoalID])
		c.endUpload(l.ID)
		if err != nil {
			c.logger.Warn("media upload failed", "log_id", l.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// uploadInBackground is the post-create path: upload one log's media right
// away, independent of the snapshot sync.
func (c *SyncController) uploadInBackground(logID string) {
	if !c.beginUpload(logID) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.endUpload(logID)
		ctx := c.baseCtx
		if !c.gateway.IsAuthenticated(ctx) {
			return
		}
		l, err := c.store.GetLog(ctx, logID)
		if err != nil || l == nil || !l.Media.Pending() {
			return
		}
		names := c.ownerNames(ctx)
		if err := c.uploadLogMedia(ctx, l, names[l.GoalID]); err != nil {
			c.logger.Warn("immediate media upload failed, will retry on next sync", "log_id", logID, "error", err)
			return
		}
		c.MarkDirty()
	}()
}

// UploadMedia uploads one log's pending media on the caller's goroutine.
func (c *SyncController) UploadMedia(ctx context.Context, logID string) error {
	if !c.beginUpload(logID) {
		return nil
	}
	defer c.endUpload(logID)
	l, err := c.tracker.Log(ctx, logID)
	if err != nil {
		return err
	}
	if !l.Media.Pending() {
		return nil
	}
	names := c.ownerNames(ctx)
	if err := c.uploadLogMedia(ctx, l, names[l.GoalID]); err != nil {
		return err
	}
	c.MarkDirty()
	return nil
}

// uploadLogMedia resolves a log's staged media, uploads it, and patches
// only the log's media field, provided the log still points at the same
// staged reference.
func (c *SyncController) uploadLogMedia(ctx context.Context, l *ObservationLog, studentName string) error {
	staged := *l.Media
	stager := c.tracker.Stager()
	if stager == nil {
		return fmt.Errorf("no media staging configured")
	}
	rc, size, err := stager.Open(staged.Reference)
	if errors.Is(err, ErrMediaMissing) {
		missing := staged
		missing.State = MediaMissing
		applied, perr := c.tracker.PatchMedia(ctx, l.ID, staged.Reference, &missing)
		if perr != nil {
			return fmt.Errorf("marking media missing: %w", perr)
		}
		if !applied {
			// resolved or replaced by the other upload path
			return nil
		}
		c.logger.Warn("staged media no longer available, marked missing", "log_id", l.ID, "reference", staged.Reference)
		c.metrics.MediaUpload("missing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening staged media: %w", err)
	}
	defer rc.Close()

	name := MediaObjectName(l.Time(), studentName, l.ID, staged.Filename)
	gctx, cancel := c.callContext(ctx)
	ref, err := c.gateway.UploadMedia(gctx, rc, size, name, staged.MimeType)
	cancel()
	if err != nil {
		c.noteFailure(err)
		c.metrics.MediaUpload("failed")
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	c.metrics.MediaUpload("success")

	remote := &Media{
		Reference: ref,
		Filename:  staged.Filename,
		MimeType:  staged.MimeType,
		Kind:      staged.Kind,
		State:     MediaRemote,
	}
	applied, err := c.tracker.PatchMedia(ctx, l.ID, staged.Reference, remote)
	if err != nil {
		return fmt.Errorf("recording remote media: %w", err)
	}
	if !applied {
		c.logger.Info("log changed during media upload, remote copy left orphaned", "log_id", l.ID, "remote", ref)
		return nil
	}
	if err := stager.Release(staged.Reference); err != nil && !errors.Is(err, ErrNotFound) {
		c.logger.Warn("releasing staged media failed", "reference", staged.Reference, "error", err)
	}
	c.logger.Info("media uploaded", "log_id", l.ID, "name", name)
	return nil
}

// dropMedia handles media removed from a log: remote files go to the
// trash, staged files are released. Both are best effort.
func (c *SyncController) dropMedia(m Media) {
	switch m.State {
	case MediaRemote:
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx := c.baseCtx
			if !c.gateway.IsAuthenticated(ctx) {
				return
			}
			gctx, cancel := c.callContext(ctx)
			defer cancel()
			if err := c.gateway.DeleteMedia(gctx, m.Reference); err != nil {
				c.logger.Warn("moving remote media to trash failed", "reference", m.Reference, "error", err)
			}
		}()
	case MediaEphemeral, MediaLocal:
		if stager := c.tracker.Stager(); stager != nil {
			if err := stager.Release(m.Reference); err != nil && !errors.Is(err, ErrNotFound) {
				c.logger.Warn("releasing staged media failed", "reference", m.Reference, "error", err)
			}
		}
	}
}

func (c *SyncController) beginUpload(logID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uploading[logID] {
		return false
	}
	next := make(map[string]bool, len(c.uploading)+1)
	for id := range c.uploading {
		next[id] = true
	}
	next[logID] = true
	c.uploading = next
	return true
}

func (c *SyncController) endUpload(logID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]bool, len(c.uploading))
	for id := range c.uploading {
		if id != logID {
			next[id] = true
		}
	}
	c.uploading = next
}
