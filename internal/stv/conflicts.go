package stv

import (
	"path/filepath"

	"stv-go/internal/codec"
	stvfs "stv-go/internal/fs"
)

// ConflictRecord is one conflict copy found by a scan.
type ConflictRecord struct {
	RelativePath string `json:"relative_path"` // slash-separated, relative to the folder root
	OriginalName string `json:"inferred_original_name"`
	Size         int64  `json:"size_bytes"`
	ModifiedAt   *int64 `json:"modified_at,omitempty"` // unix seconds
}

// OriginalRelativePath is the path of the file this conflict was made from:
// the conflict's directory joined with the decoded name.
func (c ConflictRecord) OriginalRelativePath() string {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(c.RelativePath)))
	if dir == "." {
		return c.OriginalName
	}
	return dir + "/" + c.OriginalName
}

func (s *Service) conflictWalker() *stvfs.Walker {
	return stvfs.NewWalker(s.fs, stvfs.WalkOptions{
		SkipHidden:  true,
		ExcludeDirs: []string{VersionsDirName},
		Ignore:      s.opts.Ignore,
	})
}

// ScanConflicts walks folder and returns every conflict copy in traversal
// order. A missing folder yields an empty list. Unreadable subdirectories are
// skipped and counted in the returned stats.
func (s *Service) ScanConflicts(folder string) ([]ConflictRecord, stvfs.WalkStats) {
	var records []ConflictRecord
	stats, _ := s.conflictWalker().Walk(folder, func(e stvfs.Entry) error {
		if e.IsDir || !codec.IsConflict(e.Name) {
			return nil
		}
		rec := ConflictRecord{
			RelativePath: e.RelPath,
			OriginalName: codec.DecodeConflict(e.Name),
			Size:         e.Size,
		}
		if !e.ModTime.IsZero() {
			sec := e.ModTime.Unix()
			rec.ModifiedAt = &sec
		}
		records = append(records, rec)
		return nil
	})

	if stats.Skipped > 0 {
		s.logger.Debug("conflict scan skipped unreadable directories", "folder", folder, "skipped", stats.Skipped)
	}
	s.logger.Debug("conflict scan complete", "folder", folder, "conflicts", len(records), "dirs", stats.Dirs, "files", stats.Files)
	return records, stats
}

// WatchDirs returns folder and every directory a conflict scan would descend
// into. Used to register filesystem watches.
func (s *Service) WatchDirs(folder string) []string {
	dirs := []string{folder}
	s.conflictWalker().Walk(folder, func(e stvfs.Entry) error {
		if e.IsDir {
			dirs = append(dirs, e.Path)
		}
		return nil
	})
	return dirs
}

// DiscardConflict deletes the conflict copy at conflictRel, keeping the
// original. A conflict that no longer exists is not an error.
func (s *Service) DiscardConflict(folder, conflictRel string) (*Outcome, error) {
	target, err := resolveTarget(folder, conflictRel)
	if err != nil {
		return nil, err
	}

	info, err := s.statIfExists(target)
	if err != nil {
		return nil, processError("failed to read conflict file", target, err)
	}
	if info == nil {
		s.logger.Info("conflict already gone", "path", target)
		return &Outcome{}, nil
	}
	if info.IsDir() {
		return nil, processError("conflict path is a directory", target, nil)
	}

	if err := s.fs.Remove(target); err != nil {
		return nil, processError("failed to delete conflict file", target, err)
	}
	s.logger.Info("conflict discarded", "path", target, "size", info.Size())
	return &Outcome{Files: 1, Bytes: info.Size(), Removed: 1}, nil
}

// PromoteConflict replaces the original with the conflict copy: the original
// is deleted first, then the conflict is renamed into its place. The two steps
// are not atomic; if the rename fails the original is already gone.
// When the conflict has disappeared in the meantime, the deleted original is
// reported in Removed.
func (s *Service) PromoteConflict(folder, originalRel, conflictRel string) (*Outcome, error) {
	original, err := resolveTarget(folder, originalRel)
	if err != nil {
		return nil, err
	}
	conflict, err := resolveTarget(folder, conflictRel)
	if err != nil {
		return nil, err
	}
	if original == conflict {
		return nil, invalidArgument("original and conflict are the same file", conflictRel, nil)
	}

	origInfo, err := s.statIfExists(original)
	if err != nil {
		return nil, processError("failed to read original file", original, err)
	}
	if origInfo != nil {
		if origInfo.IsDir() {
			return nil, processError("original path is a directory", original, nil)
		}
		if err := s.fs.Remove(original); err != nil {
			return nil, processError("failed to delete original file", original, err)
		}
		s.logger.Info("original removed for promotion", "path", original)
	}

	conflictInfo, err := s.statIfExists(conflict)
	if err != nil {
		return nil, processError("failed to read conflict file", conflict, err)
	}
	if conflictInfo == nil {
		if origInfo == nil {
			return &Outcome{}, nil
		}
		s.logger.Warn("conflict vanished after original was removed", "conflict", conflict, "original", original)
		return &Outcome{Files: 1, Bytes: origInfo.Size(), Removed: 1}, nil
	}
	if err := s.fs.Rename(conflict, original); err != nil {
		return nil, processError("failed to rename conflict file", conflict, err)
	}

	s.logger.Info("conflict promoted", "from", conflict, "to", original, "size", conflictInfo.Size())
	return &Outcome{Files: 1, Bytes: conflictInfo.Size()}, nil
}
