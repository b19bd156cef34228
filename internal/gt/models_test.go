package gt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name     string
		value    *float64
		accuracy *float64
		want     float64
	}{
		{"value wins", ptr(40), ptr(90), 40},
		{"accuracy fallback", nil, ptr(72), 72},
		{"neither", nil, nil, 0},
		{"clamped high", ptr(140), nil, 100},
		{"clamped low", nil, ptr(-3), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeValue(tt.value, tt.accuracy); got != tt.want {
				t.Errorf("NormalizeValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObservationLog_UnmarshalLegacyAccuracy(t *testing.T) {
	var l ObservationLog
	if err := json.Unmarshal([]byte(`{"id":"l1","goal_id":"g1","accuracy":72,"timestamp":1700000000000}`), &l); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if l.Value != 72 {
		t.Errorf("Value = %v, want 72", l.Value)
	}
	if l.PromptLevel != PromptIndependent {
		t.Errorf("PromptLevel = %q, want independent", l.PromptLevel)
	}

	data, err := json.Marshal(&l)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"value":72`) {
		t.Errorf("re-encoded log %s lacks value", data)
	}
}

func TestGoal_UnmarshalDashedStatus(t *testing.T) {
	var g Goal
	if err := json.Unmarshal([]byte(`{"id":"g1","student_id":"s1","title":"t","status":"on-hold"}`), &g); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if g.Status != GoalOnHold {
		t.Errorf("Status = %q, want on_hold", g.Status)
	}
}

func TestMedia_Pending(t *testing.T) {
	var nilMedia *Media
	if nilMedia.Pending() {
		t.Error("nil media is pending")
	}
	for state, want := range map[MediaState]bool{
		MediaEphemeral: true,
		MediaLocal:     true,
		MediaRemote:    false,
		MediaMissing:   false,
	} {
		m := &Media{Reference: "r", State: state}
		if got := m.Pending(); got != want {
			t.Errorf("Pending() with state %s = %v, want %v", state, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := &ObservationLog{ID: "l1", GoalID: "g1", Value: 50, PromptLevel: PromptVerbal, Timestamp: 1}
	if err := Validate("add log", valid); err != nil {
		t.Fatalf("Validate(valid) error = %v", err)
	}

	tests := []struct {
		name  string
		v     any
		field string
	}{
		{"value out of range", &ObservationLog{ID: "l1", GoalID: "g1", Value: 101, PromptLevel: PromptVerbal}, "Value"},
		{"unknown prompt", &ObservationLog{ID: "l1", GoalID: "g1", PromptLevel: "shouting"}, "PromptLevel"},
		{"media without reference", &ObservationLog{ID: "l1", GoalID: "g1", PromptLevel: PromptVerbal, Media: &Media{State: MediaLocal}}, "Reference"},
		{"student without name", Student{ID: "s1"}, "Name"},
		{"goal with bad status", Goal{ID: "g1", StudentID: "s1", Title: "t", Status: "paused"}, "Status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate("check", tt.v)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.field)
			}
		})
	}
}
