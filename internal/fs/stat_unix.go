//go:build unix

package fs

import (
	"fmt"
	"io/fs"
	"syscall"
	"time"
)

// statData holds the change time, which fs.FileInfo does not expose.
type statData struct {
	Ctime time.Time
}

// extractStatData extracts Unix-specific stat data from a FileInfo.
func extractStatData(info fs.FileInfo) (*statData, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("cannot extract stat data: expected *syscall.Stat_t, got %T", info.Sys())
	}
	return &statData{Ctime: time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)}, nil
}
