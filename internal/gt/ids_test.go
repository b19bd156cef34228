package gt

import (
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestUUIDGenerator(t *testing.T) {
	g := NewUUIDGenerator()

	a, b := g.New(), g.New()
	if !uuidV4.MatchString(a) {
		t.Errorf("New() = %q, not a version 4 UUID", a)
	}
	if a == b {
		t.Errorf("New() returned %q twice", a)
	}
	if g.FallbackUsed() {
		t.Error("FallbackUsed() = true with a working random source")
	}
}

func TestUUIDGenerator_Fallback(t *testing.T) {
	uuid.SetRand(failingReader{})
	t.Cleanup(func() { uuid.SetRand(nil) })

	g := NewUUIDGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.New()
		if !uuidV4.MatchString(id) {
			t.Fatalf("fallback id %q does not have the version 4 shape", id)
		}
		if seen[id] {
			t.Fatalf("fallback id %q repeated", id)
		}
		seen[id] = true
	}
	if !g.FallbackUsed() {
		t.Error("FallbackUsed() = false after the random source failed")
	}
}
