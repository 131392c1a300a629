package stv

import (
	"fmt"

	stvfs "stv-go/internal/fs"
)

// StorageReport aggregates the versions directory of a folder.
type StorageReport struct {
	TotalBytes     int64  `json:"total_bytes"`
	TotalFormatted string `json:"total_formatted"`
	FileCount      int64  `json:"file_count"`
	Exists         bool   `json:"exists"`
}

// StorageUsage sums file sizes and counts files below the versions directory.
// A missing versions directory is reported with Exists=false, not as an error.
func (s *Service) StorageUsage(folder string) (*StorageReport, error) {
	dir := versionsDir(folder)
	info, err := s.statIfExists(dir)
	if err != nil {
		return nil, processError("failed to read versions directory", dir, err)
	}
	if info == nil || !info.IsDir() {
		return &StorageReport{TotalFormatted: FormatBytes(0)}, nil
	}

	total, count := s.measure(dir)
	return &StorageReport{
		TotalBytes:     total,
		TotalFormatted: FormatBytes(total),
		FileCount:      count,
		Exists:         true,
	}, nil
}

// measure is best-effort: unreadable subtrees are left out of the totals.
// Links to regular files count with their target's size.
func (s *Service) measure(dir string) (bytes, files int64) {
	walker := stvfs.NewWalker(s.fs, stvfs.WalkOptions{FollowFileLinks: true})
	stats, _ := walker.Walk(dir, func(e stvfs.Entry) error {
		if !e.IsDir {
			bytes += e.Size
			files++
		}
		return nil
	})
	if stats.Skipped > 0 {
		s.logger.Debug("storage accounting skipped unreadable directories", "dir", dir, "skipped", stats.Skipped)
	}
	return bytes, files
}

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders n in 1024-based units with two decimals. Values below
// 1024 are printed as an integer count of bytes.
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	value := float64(n)
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, byteUnits[unit])
}
