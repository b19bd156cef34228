//go:build !unix

package fs

import (
	"io/fs"
	"time"
)

type statData struct {
	Ctime time.Time
}

// extractStatData falls back to the modification time where ctime is unavailable.
func extractStatData(info fs.FileInfo) (*statData, error) {
	return &statData{Ctime: info.ModTime()}, nil
}
