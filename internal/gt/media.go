package gt

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// MediaStager holds attachments locally so they can be displayed at once,
// before any upload completes.
type MediaStager interface {
	// Stage stores the bytes read from r and returns media that can be
	// opened immediately. The returned State is MediaEphemeral or MediaLocal
	// depending on the implementation.
	Stage(ctx context.Context, name, mimeType string, r io.Reader) (*Media, error)

	// Open resolves a staged reference back to its bytes. Unknown or
	// expired references fail with ErrMediaMissing.
	Open(ref string) (io.ReadCloser, int64, error)

	// Release frees a staged reference. It must be called exactly once per
	// reference; a second call fails with ErrNotFound.
	Release(ref string) error
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UnknownStudentLabel replaces the student name when the owner is gone.
const UnknownStudentLabel = "unknown-student"

// MediaObjectName builds the human-readable remote name for a log's
// attachment: date, student name, a short log ID, and the original name.
func MediaObjectName(when time.Time, studentName, logID, original string) string {
	student := sanitizeNamePart(studentName)
	if student == "" {
		student = UnknownStudentLabel
	}
	base := filepath.Base(original)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	ext := strings.ToLower(filepath.Ext(base))
	stem := sanitizeNamePart(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "attachment"
	}
	short := logID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s_%s_%s%s", when.UTC().Format("2006-01-02"), student, sanitizeNamePart(short), stem, ext)
}

func sanitizeNamePart(s string) string {
	s = strings.TrimSpace(s)
	s = unsafeNameChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-.")
}
