package gt

import (
	"encoding/json"
	"strings"
	"time"
)

// Student is a learner whose goals are being tracked.
type Student struct {
	ID             string `json:"id" validate:"required"`
	Name           string `json:"name" validate:"required"`
	PhotoReference string `json:"photo_reference,omitempty"`
}

// GoalStatus is the lifecycle status of a Goal.
type GoalStatus string

const (
	GoalInProgress GoalStatus = "in_progress"
	GoalCompleted  GoalStatus = "completed"
	GoalOnHold     GoalStatus = "on_hold"
)

// ParseGoalStatus accepts the canonical names plus the dashed variants
// older data used. An empty string maps to GoalInProgress.
func ParseGoalStatus(s string) (GoalStatus, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "in_progress":
		return GoalInProgress, true
	case "completed":
		return GoalCompleted, true
	case "on_hold":
		return GoalOnHold, true
	}
	return "", false
}

// Goal belongs to one Student by StudentID. The reference is weak: it is
// never checked at write time and readers must tolerate dangling IDs.
type Goal struct {
	ID          string     `json:"id" validate:"required"`
	StudentID   string     `json:"student_id" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	Status      GoalStatus `json:"status" validate:"oneof=in_progress completed on_hold"`
}

func (g *Goal) UnmarshalJSON(data []byte) error {
	type goalAlias Goal
	var a goalAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if status, ok := ParseGoalStatus(string(a.Status)); ok {
		a.Status = status
	}
	*g = Goal(a)
	return nil
}

// PromptLevel is the amount of support given during an observation.
type PromptLevel string

const (
	PromptIndependent PromptLevel = "independent"
	PromptVerbal      PromptLevel = "verbal"
	PromptGesture     PromptLevel = "gesture"
	PromptModeling    PromptLevel = "modeling"
	PromptPhysical    PromptLevel = "physical"
)

// PromptLevels lists every valid prompt level, least support first.
var PromptLevels = []PromptLevel{PromptIndependent, PromptVerbal, PromptGesture, PromptModeling, PromptPhysical}

func ParsePromptLevel(s string) (PromptLevel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range PromptLevels {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// MediaState tracks where a media attachment's bytes live.
type MediaState string

const (
	// MediaEphemeral bytes exist only in this process.
	MediaEphemeral MediaState = "ephemeral"
	// MediaLocal bytes are on local disk and survive restart.
	MediaLocal MediaState = "local"
	// MediaRemote bytes are in the backup provider's media folder.
	MediaRemote MediaState = "remote"
	// MediaMissing marks an ephemeral reference that did not survive restart.
	MediaMissing MediaState = "missing"
)

// MediaKind is the broad type of an attachment.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaKindFor derives the kind from a MIME type. Anything that is not
// video is shown as an image.
func MediaKindFor(mimeType string) MediaKind {
	if strings.HasPrefix(strings.ToLower(mimeType), "video/") {
		return MediaVideo
	}
	return MediaImage
}

// Media is a binary attachment on an ObservationLog.
type Media struct {
	Reference string     `json:"reference" validate:"required"`
	Filename  string     `json:"filename,omitempty"`
	MimeType  string     `json:"mime_type,omitempty"`
	Kind      MediaKind  `json:"kind,omitempty" validate:"omitempty,oneof=image video"`
	State     MediaState `json:"state" validate:"oneof=ephemeral local remote missing"`
}

// Pending reports whether the media still needs to be uploaded.
func (m *Media) Pending() bool {
	return m != nil && (m.State == MediaEphemeral || m.State == MediaLocal)
}

// ObservationLog records one observation of a student working on a goal.
type ObservationLog struct {
	ID          string      `json:"id" validate:"required"`
	GoalID      string      `json:"goal_id" validate:"required"`
	Value       float64     `json:"value" validate:"min=0,max=100"`
	PromptLevel PromptLevel `json:"prompt_level" validate:"oneof=independent verbal gesture modeling physical"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64  `json:"timestamp" validate:"gte=0"`
	Notes     string `json:"notes,omitempty"`
	Media     *Media `json:"media,omitempty" validate:"omitempty"`
}

// Time returns the observation time.
func (l *ObservationLog) Time() time.Time { return time.UnixMilli(l.Timestamp) }

// UnmarshalJSON accepts records written before value replaced accuracy.
// Such records derive value from accuracy on every read.
func (l *ObservationLog) UnmarshalJSON(data []byte) error {
	type logAlias ObservationLog
	aux := struct {
		*logAlias
		Value    *float64 `json:"value"`
		Accuracy *float64 `json:"accuracy"`
	}{logAlias: (*logAlias)(l)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	l.Value = NormalizeValue(aux.Value, aux.Accuracy)
	if l.PromptLevel == "" {
		l.PromptLevel = PromptIndependent
	}
	return nil
}

// NormalizeValue resolves a log's value from the current field, falling
// back to the deprecated accuracy field, clamped to [0,100].
func NormalizeValue(value, accuracy *float64) float64 {
	var v float64
	switch {
	case value != nil:
		v = *value
	case accuracy != nil:
		v = *accuracy
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
