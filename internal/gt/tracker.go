package gt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Hooks are the Tracker's outbound notifications. Every hook is optional.
type Hooks struct {
	// Dirty fires after every committed mutation, once the store write is
	// visible to readers.
	Dirty func()
	// MediaStaged fires after a log with pending media is written.
	MediaStaged func(logID string)
	// MediaDropped fires when a log's media is deleted or replaced.
	MediaDropped func(m Media)
}

// Tracker is the application state: every read and mutation of students,
// goals, logs and settings goes through it, and through it to the Store.
//
// Collection read-modify-write sequences are serialized by a single writer
// lock, so concurrent mutations in one process never lose updates.
type Tracker struct {
	store    Store
	stager   MediaStager
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	seedDemo bool

	mu     sync.Mutex
	seeded map[string]bool
	hooks  Hooks
}

// NewTracker creates a Tracker with the provided dependencies. When
// seedDemo is true, empty student and goal collections are seeded with
// demo content on first access.
func NewTracker(store Store, stager MediaStager, logger Logger, clock Clock, idgen IDGenerator, seedDemo bool) *Tracker {
	return &Tracker{
		store:    store,
		stager:   stager,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		seedDemo: seedDemo,
		seeded:   make(map[string]bool),
	}
}

// SetHooks replaces the Tracker's hooks.
func (t *Tracker) SetHooks(h Hooks) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = h
}

// Store returns the underlying record store.
func (t *Tracker) Store() Store { return t.store }

// Stager returns the media stager.
func (t *Tracker) Stager() MediaStager { return t.stager }

// changed records the local change time and raises the dirty signal.
// Callers must not hold t.mu.
func (t *Tracker) changed(ctx context.Context) {
	now := strconv.FormatInt(t.clock.Now().UnixMilli(), 10)
	if err := t.store.PutCollection(ctx, KeyLastLocalChange, []byte(now)); err != nil {
		t.logger.Warn("recording local change time failed", "error", err)
	}
	t.mu.Lock()
	dirty := t.hooks.Dirty
	t.mu.Unlock()
	if dirty != nil {
		dirty()
	}
}

func (t *Tracker) mediaStaged(logID string) {
	t.mu.Lock()
	fn := t.hooks.MediaStaged
	t.mu.Unlock()
	if fn != nil {
		fn(logID)
	}
}

func (t *Tracker) mediaDropped(m *Media) {
	if m == nil {
		return
	}
	t.mu.Lock()
	fn := t.hooks.MediaDropped
	t.mu.Unlock()
	if fn != nil {
		fn(*m)
	}
}

// Students

// Students returns every student in persisted order, seeding demo content
// on the first access of an empty collection.
func (t *Tracker) Students(ctx context.Context) ([]Student, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.studentsLocked(ctx)
}

func (t *Tracker) studentsLocked(ctx context.Context) ([]Student, error) {
	var students []Student
	if err := readCollection(ctx, t.store, KeyStudents, &students); err != nil {
		return nil, err
	}
	if len(students) == 0 && t.seedDemo && !t.seeded[KeyStudents] {
		t.seeded[KeyStudents] = true
		students = demoStudents()
		if err := t.writeCollection(ctx, KeyStudents, students); err != nil {
			return nil, fmt.Errorf("seeding students: %w", err)
		}
		t.logger.Info("seeded demo students", "count", len(students))
	}
	t.seeded[KeyStudents] = true
	return students, nil
}

// OrderedStudents returns students sorted by the cached display order.
// Students missing from the cache keep their relative order at the end.
func (t *Tracker) OrderedStudents(ctx context.Context) ([]Student, error) {
	students, err := t.Students(ctx)
	if err != nil {
		return nil, err
	}
	order, err := t.StudentOrder(ctx)
	if err != nil {
		return nil, err
	}
	rank := make(map[string]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	sort.SliceStable(students, func(i, j int) bool {
		ri, iok := rank[students[i].ID]
		rj, jok := rank[students[j].ID]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		default:
			return false
		}
	})
	return students, nil
}

// Student returns a single student or ErrNotFound.
func (t *Tracker) Student(ctx context.Context, id string) (*Student, error) {
	students, err := t.Students(ctx)
	if err != nil {
		return nil, err
	}
	for i := range students {
		if students[i].ID == id {
			return &students[i], nil
		}
	}
	return nil, Errorf(KindNotFound, "get student", "student %s", id)
}

// AddStudent creates a student.
func (t *Tracker) AddStudent(ctx context.Context, name, photoRef string) (*Student, error) {
	s := Student{ID: t.idgen.New(), Name: name, PhotoReference: photoRef}
	if err := Validate("add student", s); err != nil {
		return nil, err
	}
	err := t.mutateStudents(ctx, func(students []Student) ([]Student, error) {
		return append(students, s), nil
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("student added", "student_id", s.ID)
	t.changed(ctx)
	return &s, nil
}

// UpdateStudent replaces a student's name and photo.
func (t *Tracker) UpdateStudent(ctx context.Context, s Student) error {
	if err := Validate("update student", s); err != nil {
		return err
	}
	err := t.mutateStudents(ctx, func(students []Student) ([]Student, error) {
		for i := range students {
			if students[i].ID == s.ID {
				students[i] = s
				return students, nil
			}
		}
		return nil, Errorf(KindNotFound, "update student", "student %s", s.ID)
	})
	if err != nil {
		return err
	}
	t.changed(ctx)
	return nil
}

// DeleteStudent removes a student together with its goals and their logs.
// The store never cascades, so the dependents are removed here.
func (t *Tracker) DeleteStudent(ctx context.Context, id string) error {
	var goalIDs []string
	err := t.mutateStudents(ctx, func(students []Student) ([]Student, error) {
		idx := slices.IndexFunc(students, func(s Student) bool { return s.ID == id })
		if idx < 0 {
			return nil, Errorf(KindNotFound, "delete student", "student %s", id)
		}
		return slices.Delete(students, idx, idx+1), nil
	})
	if err != nil {
		return err
	}
	err = t.mutateGoals(ctx, func(goals []Goal) ([]Goal, error) {
		return slices.DeleteFunc(goals, func(g Goal) bool {
			if g.StudentID == id {
				goalIDs = append(goalIDs, g.ID)
				return true
			}
			return false
		}), nil
	})
	if err != nil {
		return fmt.Errorf("deleting goals of student %s: %w", id, err)
	}
	for _, goalID := range goalIDs {
		logs, err := t.store.LogsByGoal(ctx, goalID)
		if err != nil {
			return fmt.Errorf("listing logs of goal %s: %w", goalID, err)
		}
		for _, l := range logs {
			if err := t.store.DeleteLog(ctx, l.ID); err != nil && KindOf(err) != KindNotFound {
				return fmt.Errorf("deleting log %s: %w", l.ID, err)
			}
			t.mediaDropped(l.Media)
		}
	}
	t.mu.Lock()
	order, err := t.studentOrderLocked(ctx)
	if err == nil {
		order = slices.DeleteFunc(order, func(s string) bool { return s == id })
		err = t.writeCollection(ctx, KeyStudentOrder, order)
	}
	t.mu.Unlock()
	if err != nil {
		t.logger.Warn("updating student order failed", "error", err)
	}
	t.logger.Info("student deleted", "student_id", id, "goals", len(goalIDs))
	t.changed(ctx)
	return nil
}

func (t *Tracker) mutateStudents(ctx context.Context, fn func([]Student) ([]Student, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	students, err := t.studentsLocked(ctx)
	if err != nil {
		return err
	}
	students, err = fn(students)
	if err != nil {
		return err
	}
	return t.writeCollection(ctx, KeyStudents, students)
}

// Goals

// Goals returns every goal in persisted order, seeding demo content on the
// first access of an empty collection.
func (t *Tracker) Goals(ctx context.Context) ([]Goal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.goalsLocked(ctx)
}

func (t *Tracker) goalsLocked(ctx context.Context) ([]Goal, error) {
	var goals []Goal
	if err := readCollection(ctx, t.store, KeyGoals, &goals); err != nil {
		return nil, err
	}
	if len(goals) == 0 && t.seedDemo && !t.seeded[KeyGoals] {
		t.seeded[KeyGoals] = true
		goals = demoGoals()
		if err := t.writeCollection(ctx, KeyGoals, goals); err != nil {
			return nil, fmt.Errorf("seeding goals: %w", err)
		}
		t.logger.Info("seeded demo goals", "count", len(goals))
	}
	t.seeded[KeyGoals] = true
	return goals, nil
}

// Goal returns a single goal or ErrNotFound.
func (t *Tracker) Goal(ctx context.Context, id string) (*Goal, error) {
	goals, err := t.Goals(ctx)
	if err != nil {
		return nil, err
	}
	for i := range goals {
		if goals[i].ID == id {
			return &goals[i], nil
		}
	}
	return nil, Errorf(KindNotFound, "get goal", "goal %s", id)
}

// GoalsForStudent returns a student's goals in their persisted order.
func (t *Tracker) GoalsForStudent(ctx context.Context, studentID string) ([]Goal, error) {
	goals, err := t.Goals(ctx)
	if err != nil {
		return nil, err
	}
	var out []Goal
	for _, g := range goals {
		if g.StudentID == studentID {
			out = append(out, g)
		}
	}
	return out, nil
}

// GoalInput holds the fields of a new goal.
type GoalInput struct {
	StudentID   string
	Title       string
	Description string
	Icon        string
}

// AddGoal appends a goal to the end of its student's list. The student is
// not checked for existence.
func (t *Tracker) AddGoal(ctx context.Context, in GoalInput) (*Goal, error) {
	g := Goal{
		ID:          t.idgen.New(),
		StudentID:   in.StudentID,
		Title:       in.Title,
		Description: in.Description,
		Icon:        in.Icon,
		Status:      GoalInProgress,
	}
	if err := Validate("add goal", g); err != nil {
		return nil, err
	}
	err := t.mutateGoals(ctx, func(goals []Goal) ([]Goal, error) {
		return append(goals, g), nil
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("goal added", "goal_id", g.ID, "student_id", g.StudentID)
	t.changed(ctx)
	return &g, nil
}

// UpdateGoal replaces a goal, keeping its position.
func (t *Tracker) UpdateGoal(ctx context.Context, g Goal) error {
	if err := Validate("update goal", g); err != nil {
		return err
	}
	err := t.mutateGoals(ctx, func(goals []Goal) ([]Goal, error) {
		for i := range goals {
			if goals[i].ID == g.ID {
				goals[i] = g
				return goals, nil
			}
		}
		return nil, Errorf(KindNotFound, "update goal", "goal %s", g.ID)
	})
	if err != nil {
		return err
	}
	t.changed(ctx)
	return nil
}

// SetGoalStatus changes only a goal's status.
func (t *Tracker) SetGoalStatus(ctx context.Context, id string, status GoalStatus) error {
	if _, ok := ParseGoalStatus(string(status)); !ok || status == "" {
		return Errorf(KindValidation, "set goal status", "unknown status %q", status)
	}
	err := t.mutateGoals(ctx, func(goals []Goal) ([]Goal, error) {
		for i := range goals {
			if goals[i].ID == id {
				goals[i].Status = status
				return goals, nil
			}
		}
		return nil, Errorf(KindNotFound, "set goal status", "goal %s", id)
	})
	if err != nil {
		return err
	}
	t.changed(ctx)
	return nil
}

// DeleteGoal removes a goal. Its logs stay in the store; views that filter
// by goal stop showing them.
func (t *Tracker) DeleteGoal(ctx context.Context, id string) error {
	err := t.mutateGoals(ctx, func(goals []Goal) ([]Goal, error) {
		idx := slices.IndexFunc(goals, func(g Goal) bool { return g.ID == id })
		if idx < 0 {
			return nil, Errorf(KindNotFound, "delete goal", "goal %s", id)
		}
		return slices.Delete(goals, idx, idx+1), nil
	})
	if err != nil {
		return err
	}
	t.logger.Info("goal deleted", "goal_id", id)
	t.changed(ctx)
	return nil
}

// ReorderGoals sets the display order of a student's goals. ids must list
// each of the student's goals exactly once. Other students' goals keep
// their positions.
func (t *Tracker) ReorderGoals(ctx context.Context, studentID string, ids []string) error {
	const op = "reorder goals"
	err := t.mutateGoals(ctx, func(goals []Goal) ([]Goal, error) {
		byID := make(map[string]Goal)
		var slots []int
		for i, g := range goals {
			if g.StudentID == studentID {
				byID[g.ID] = g
				slots = append(slots, i)
			}
		}
		if len(ids) != len(slots) {
			return nil, Errorf(KindValidation, op, "got %d ids, student has %d goals", len(ids), len(slots))
		}
		seen := make(map[string]bool, len(ids))
		for i, id := range ids {
			g, ok := byID[id]
			if !ok || seen[id] {
				return nil, Errorf(KindValidation, op, "goal %s is not a unique goal of student %s", id, studentID)
			}
			seen[id] = true
			goals[slots[i]] = g
		}
		return goals, nil
	})
	if err != nil {
		return err
	}
	t.changed(ctx)
	return nil
}

func (t *Tracker) mutateGoals(ctx context.Context, fn func([]Goal) ([]Goal, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	goals, err := t.goalsLocked(ctx)
	if err != nil {
		return err
	}
	goals, err = fn(goals)
	if err != nil {
		return err
	}
	return t.writeCollection(ctx, KeyGoals, goals)
}

// Settings

// StudentOrder returns the cached student display order.
func (t *Tracker) StudentOrder(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.studentOrderLocked(ctx)
}

func (t *Tracker) studentOrderLocked(ctx context.Context) ([]string, error) {
	var order []string
	if err := readCollection(ctx, t.store, KeyStudentOrder, &order); err != nil {
		return nil, err
	}
	return order, nil
}

// SetStudentOrder replaces the cached student display order.
func (t *Tracker) SetStudentOrder(ctx context.Context, ids []string) error {
	t.mu.Lock()
	err := t.writeCollection(ctx, KeyStudentOrder, ids)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.changed(ctx)
	return nil
}

// ActiveWidget returns the selected dashboard widget, or "".
func (t *Tracker) ActiveWidget(ctx context.Context) (string, error) {
	raw, err := t.store.GetCollection(ctx, KeyActiveWidget)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SetActiveWidget stores the selected dashboard widget.
func (t *Tracker) SetActiveWidget(ctx context.Context, name string) error {
	if err := t.store.PutCollection(ctx, KeyActiveWidget, []byte(name)); err != nil {
		return err
	}
	t.changed(ctx)
	return nil
}

// RawCollection returns an opaque collection (assessments, widgets).
func (t *Tracker) RawCollection(ctx context.Context, key string) (json.RawMessage, error) {
	return t.store.GetCollection(ctx, key)
}

// PutRawCollection replaces an opaque collection. The value must be JSON.
func (t *Tracker) PutRawCollection(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return Errorf(KindInvalidFormat, "put "+key, "value is not valid JSON")
	}
	t.mu.Lock()
	err := t.store.PutCollection(ctx, key, value)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.changed(ctx)
	return nil
}

// LastSyncTime returns the time of the last successful sync, or the zero time.
func (t *Tracker) LastSyncTime(ctx context.Context) (time.Time, error) {
	return t.millisSetting(ctx, KeyLastSyncTime)
}

// LastLocalChange returns the time of the last local mutation, or the zero time.
func (t *Tracker) LastLocalChange(ctx context.Context) (time.Time, error) {
	return t.millisSetting(ctx, KeyLastLocalChange)
}

func (t *Tracker) millisSetting(ctx context.Context, key string) (time.Time, error) {
	raw, err := t.store.GetCollection(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	if len(raw) == 0 {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, E(KindInvalidFormat, "read "+key, err)
	}
	return time.UnixMilli(ms), nil
}

func (t *Tracker) setLastSyncTime(ctx context.Context, at time.Time) error {
	return t.store.PutCollection(ctx, KeyLastSyncTime, []byte(strconv.FormatInt(at.UnixMilli(), 10)))
}

func (t *Tracker) writeCollection(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return t.store.PutCollection(ctx, key, data)
}

// Logs

// Attachment is a file attached to a log by the user.
type Attachment struct {
	Name     string
	MimeType string
	Body     io.Reader
}

// LogInput holds the fields of a new log. A zero At means now.
type LogInput struct {
	GoalID      string
	Value       float64
	PromptLevel PromptLevel
	At          time.Time
	Notes       string
	Attachment  *Attachment
}

// AddLog records an observation. An attachment is staged locally and the
// log is written with the staged reference; the upload happens later and
// never delays the write.
func (t *Tracker) AddLog(ctx context.Context, in LogInput) (*ObservationLog, error) {
	at := in.At
	if at.IsZero() {
		at = t.clock.Now()
	}
	prompt := in.PromptLevel
	if prompt == "" {
		prompt = PromptIndependent
	}
	l := &ObservationLog{
		ID:          t.idgen.New(),
		GoalID:      in.GoalID,
		Value:       in.Value,
		PromptLevel: prompt,
		Timestamp:   at.UnixMilli(),
		Notes:       in.Notes,
	}
	if err := Validate("add log", l); err != nil {
		return nil, err
	}
	if in.Attachment != nil {
		m, err := t.stage(ctx, in.Attachment)
		if err != nil {
			return nil, err
		}
		l.Media = m
	}
	if err := t.store.PutLog(ctx, l); err != nil {
		if l.Media != nil {
			t.releaseStaged(l.Media)
		}
		return nil, fmt.Errorf("writing log: %w", err)
	}
	t.logger.Info("log recorded", "log_id", l.ID, "goal_id", l.GoalID, "media", l.Media != nil)
	t.changed(ctx)
	if l.Media.Pending() {
		t.mediaStaged(l.ID)
	}
	return l, nil
}

// LogUpdate lists the fields to change. Nil fields are left alone.
type LogUpdate struct {
	Value       *float64
	PromptLevel *PromptLevel
	At          *time.Time
	Notes       *string
	Attachment  *Attachment
	RemoveMedia bool
}

// UpdateLog applies an update to an existing log and returns the result.
func (t *Tracker) UpdateLog(ctx context.Context, id string, u LogUpdate) (*ObservationLog, error) {
	var staged *Media
	if u.Attachment != nil {
		m, err := t.stage(ctx, u.Attachment)
		if err != nil {
			return nil, err
		}
		staged = m
	}

	t.mu.Lock()
	l, err := t.store.GetLog(ctx, id)
	if err == nil && l == nil {
		err = Errorf(KindNotFound, "update log", "log %s", id)
	}
	var dropped *Media
	if err == nil {
		if u.Value != nil {
			l.Value = *u.Value
		}
		if u.PromptLevel != nil {
			l.PromptLevel = *u.PromptLevel
		}
		if u.At != nil {
			l.Timestamp = u.At.UnixMilli()
		}
		if u.Notes != nil {
			l.Notes = *u.Notes
		}
		if staged != nil || u.RemoveMedia {
			dropped = l.Media
			l.Media = staged
		}
		err = Validate("update log", l)
		if err == nil {
			err = t.store.UpdateLog(ctx, l)
		}
	}
	t.mu.Unlock()

	if err != nil {
		if staged != nil {
			t.releaseStaged(staged)
		}
		return nil, err
	}
	t.changed(ctx)
	t.mediaDropped(dropped)
	if staged != nil {
		t.mediaStaged(l.ID)
	}
	return l, nil
}

// DeleteLog removes a log. Returns ErrNotFound if it does not exist.
func (t *Tracker) DeleteLog(ctx context.Context, id string) error {
	t.mu.Lock()
	l, err := t.store.GetLog(ctx, id)
	if err == nil {
		err = t.store.DeleteLog(ctx, id)
	}
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if l != nil {
		t.mediaDropped(l.Media)
	}
	t.changed(ctx)
	return nil
}

// Log returns a single log or ErrNotFound.
func (t *Tracker) Log(ctx context.Context, id string) (*ObservationLog, error) {
	l, err := t.store.GetLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, Errorf(KindNotFound, "get log", "log %s", id)
	}
	return l, nil
}

// LogsForGoal returns a goal's logs, oldest first.
func (t *Tracker) LogsForGoal(ctx context.Context, goalID string) ([]*ObservationLog, error) {
	logs, err := t.store.LogsByGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	sortLogs(logs)
	return logs, nil
}

// LogsBetween returns logs with start <= time < end, oldest first.
func (t *Tracker) LogsBetween(ctx context.Context, start, end time.Time) ([]*ObservationLog, error) {
	logs, err := t.store.LogsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sortLogs(logs)
	return logs, nil
}

func sortLogs(logs []*ObservationLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].Timestamp != logs[j].Timestamp {
			return logs[i].Timestamp < logs[j].Timestamp
		}
		return logs[i].ID < logs[j].ID
	})
}

// PatchMedia replaces a log's media only if its reference still equals
// expectedRef, re-reading the record under the writer lock. Every other
// field keeps its current stored value. An applied patch is recorded as a
// local change so an unsynced resolution survives a restart; it does not
// raise the dirty signal, callers decide whether a sync follows.
func (t *Tracker) PatchMedia(ctx context.Context, logID, expectedRef string, m *Media) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	applied, err := t.store.PatchLogMedia(ctx, logID, expectedRef, m)
	if err != nil || !applied {
		return applied, err
	}
	now := strconv.FormatInt(t.clock.Now().UnixMilli(), 10)
	if err := t.store.PutCollection(ctx, KeyLastLocalChange, []byte(now)); err != nil {
		t.logger.Warn("recording local change time failed", "error", err)
	}
	return true, nil
}

// replaceAll swaps every structured record for the snapshot's contents.
// Seeding is switched off for the rest of the process so an empty restored
// collection stays empty.
func (t *Tracker) replaceAll(ctx context.Context, snap *Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.ReplaceAll(ctx, snap); err != nil {
		return err
	}
	t.seeded[KeyStudents] = true
	t.seeded[KeyGoals] = true
	return nil
}

// StudentDetail is a student with their goals and each goal's logs.
type StudentDetail struct {
	Student Student
	Goals   []GoalDetail
}

// GoalDetail is a goal with its logs, oldest first.
type GoalDetail struct {
	Goal Goal
	Logs []*ObservationLog
}

// StudentDetail builds the per-student view. Logs whose goal no longer
// exists are not reachable from it.
func (t *Tracker) StudentDetail(ctx context.Context, studentID string) (*StudentDetail, error) {
	s, err := t.Student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	goals, err := t.GoalsForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	detail := &StudentDetail{Student: *s}
	for _, g := range goals {
		logs, err := t.LogsForGoal(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		detail.Goals = append(detail.Goals, GoalDetail{Goal: g, Logs: logs})
	}
	return detail, nil
}

func (t *Tracker) stage(ctx context.Context, a *Attachment) (*Media, error) {
	if t.stager == nil {
		return nil, fmt.Errorf("no media staging configured")
	}
	m, err := t.stager.Stage(ctx, a.Name, a.MimeType, a.Body)
	if err != nil {
		return nil, fmt.Errorf("staging attachment: %w", err)
	}
	return m, nil
}

func (t *Tracker) releaseStaged(m *Media) {
	if t.stager == nil || !m.Pending() {
		return
	}
	if err := t.stager.Release(m.Reference); err != nil {
		t.logger.Warn("releasing staged media failed", "reference", m.Reference, "error", err)
	}
}
