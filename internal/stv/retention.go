package stv

import (
	"fmt"
	"time"

	stvfs "stv-go/internal/fs"
)

// RetentionResult reports what a prune actually removed. Counts only include
// deletions that succeeded.
type RetentionResult struct {
	Success      bool   `json:"success"`
	FilesDeleted int64  `json:"files_deleted"`
	BytesFreed   int64  `json:"bytes_freed"`
	DirsRemoved  int    `json:"dirs_removed"`
	Error        string `json:"error,omitempty"`
}

// PruneAll deletes the whole versions directory. The freed size is measured
// before deletion. A failed recursive delete is reported in the result with
// Success=false and zero counts rather than returned as an error.
func (s *Service) PruneAll(folder string) (*RetentionResult, error) {
	dir := versionsDir(folder)
	info, err := s.statIfExists(dir)
	if err != nil {
		return nil, processError("failed to read versions directory", dir, err)
	}
	if info == nil {
		return &RetentionResult{Success: true}, nil
	}

	bytes, files := s.measure(dir)
	if err := s.fs.RemoveAll(dir); err != nil {
		s.logger.Warn("failed to delete versions", "dir", dir, "error", err)
		return &RetentionResult{
			Success: false,
			Error:   fmt.Sprintf("failed to delete versions: %v", err),
		}, nil
	}

	s.logger.Info("versions deleted", "dir", dir, "files", files, "bytes", bytes)
	return &RetentionResult{
		Success:      true,
		FilesDeleted: files,
		BytesFreed:   bytes,
	}, nil
}

// PruneOlderThan deletes every version file modified strictly before
// now - days, then removes directories left empty, including the versions
// directory itself. Per-file failures are skipped and not counted. An
// interrupted prune leaves earlier deletions in place.
func (s *Service) PruneOlderThan(folder string, days int) (*RetentionResult, error) {
	if days < 0 {
		return nil, invalidArgument("age in days must not be negative", fmt.Sprint(days), nil)
	}

	dir := versionsDir(folder)
	info, err := s.statIfExists(dir)
	if err != nil {
		return nil, processError("failed to read versions directory", dir, err)
	}
	if info == nil {
		return &RetentionResult{Success: true}, nil
	}

	cutoff := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	result := &RetentionResult{Success: true}

	walker := stvfs.NewWalker(s.fs, stvfs.WalkOptions{})
	walker.Walk(dir, func(e stvfs.Entry) error {
		if e.IsDir || !e.ModTime.Before(cutoff) {
			return nil
		}
		if err := s.fs.Remove(e.Path); err != nil {
			s.logger.Debug("skipping undeletable version", "path", e.Path, "error", err)
			return nil
		}
		result.FilesDeleted++
		result.BytesFreed += e.Size
		return nil
	})

	result.DirsRemoved = stvfs.RemoveEmptyDirs(s.fs, dir)

	s.logger.Info("old versions pruned",
		"dir", dir,
		"cutoff", cutoff.UTC().Format(time.RFC3339),
		"files", result.FilesDeleted,
		"bytes", result.BytesFreed,
		"dirs", result.DirsRemoved,
	)
	return result, nil
}
