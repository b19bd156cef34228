package gt

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("saving: %w", Errorf(KindStorage, "put log", "disk full"))

	if !errors.Is(err, ErrStorage) {
		t.Error("wrapped storage error does not match ErrStorage")
	}
	if errors.Is(err, ErrNetwork) {
		t.Error("storage error matches ErrNetwork")
	}
	if got := KindOf(err); got != KindStorage {
		t.Errorf("KindOf() = %v, want %v", got, KindStorage)
	}
	if got := KindOf(errors.New("plain")); got != 0 {
		t.Errorf("KindOf(plain) = %v, want 0", got)
	}
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{E(KindNotFound, "update log", errors.New("log l1")), "update log: not found: log l1"},
		{E(KindAuth, "sync now", nil), "sync now: authentication error"},
		{E(KindNetwork, "", errors.New("timeout")), "network error: timeout"},
		{ErrRemote, "remote error"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
