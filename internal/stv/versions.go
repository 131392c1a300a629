package stv

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"stv-go/internal/codec"
	stvfs "stv-go/internal/fs"
)

// EntryType distinguishes files from directories inside the versions directory.
type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDirectory EntryType = "directory"
)

// VersionEntry is one direct child of a versions directory listing.
type VersionEntry struct {
	FileName         string    `json:"file_name"`
	OriginalName     string    `json:"original_name"`
	Type             EntryType `json:"entry_type"`
	Size             *int64    `json:"size_bytes,omitempty"`
	ModifiedAt       *int64    `json:"modified_at,omitempty"`
	VersionTimestamp string    `json:"version_timestamp,omitempty"` // "YYYY-MM-DD HH:MM:SS"
}

// IsDir reports whether the entry is a directory.
func (e VersionEntry) IsDir() bool { return e.Type == EntryDirectory }

// ListVersions lists the direct children of the versions directory, or of
// prefix below it. Directories sort first, then entries by modification time,
// newest first. A missing directory yields an empty list.
func (s *Service) ListVersions(folder, prefix string) ([]VersionEntry, error) {
	dir, err := resolve(versionsDir(folder), prefix)
	if err != nil {
		return nil, err
	}

	info, err := s.statIfExists(dir)
	if err != nil {
		return nil, processError("failed to read versions directory", dir, err)
	}
	if info == nil {
		return []VersionEntry{}, nil
	}
	if !info.IsDir() {
		return nil, processError("not a directory", dir, nil)
	}

	names, err := readDirNames(s.fs, dir)
	if err != nil {
		return nil, processError("failed to read versions directory", dir, err)
	}

	entries := make([]VersionEntry, 0, len(names))
	for _, name := range names {
		child, err := stvfs.Lstat(s.fs, filepath.Join(dir, name))
		if err != nil {
			s.logger.Debug("skipping unreadable version entry", "dir", dir, "name", name, "error", err)
			continue
		}
		entries = append(entries, newVersionEntry(child))
	}
	sortVersionEntries(entries)
	return entries, nil
}

func readDirNames(fsys afero.Fs, dir string) ([]string, error) {
	f, err := fsys.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func newVersionEntry(info os.FileInfo) VersionEntry {
	e := VersionEntry{
		FileName:   info.Name(),
		ModifiedAt: unixSeconds(info),
	}
	if info.IsDir() {
		e.Type = EntryDirectory
		e.OriginalName = info.Name()
		return e
	}

	size := info.Size()
	e.Type = EntryFile
	e.Size = &size
	e.OriginalName, e.VersionTimestamp, _ = codec.DecodeVersion(info.Name())
	return e
}

// sortVersionEntries orders directories before files, then newest first.
// Entries without a modification time sort as the epoch.
func sortVersionEntries(entries []VersionEntry) {
	mod := func(e VersionEntry) int64 {
		if e.ModifiedAt == nil {
			return 0
		}
		return *e.ModifiedAt
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		return mod(a) > mod(b)
	})
}

const overwriteHint = "retry with overwrite enabled to replace the existing file"

// RestoreVersion copies the version at versionRel (relative to the versions
// directory) to originalRel (relative to the folder). The version itself is
// left untouched. An existing destination is only replaced when overwrite is set.
func (s *Service) RestoreVersion(folder, versionRel, originalRel string, overwrite bool) (*Outcome, error) {
	src, err := resolveTarget(versionsDir(folder), versionRel)
	if err != nil {
		return nil, err
	}
	dst, err := resolveTarget(folder, originalRel)
	if err != nil {
		return nil, err
	}
	if stvfs.Within(versionsDir(folder), dst) {
		return nil, invalidArgument("restore destination is inside the versions directory", originalRel, nil)
	}

	srcInfo, err := s.statIfExists(src)
	if err != nil {
		return nil, processError("failed to read version", src, err)
	}
	if srcInfo == nil {
		return nil, notFound("version file not found", src)
	}
	if srcInfo.IsDir() {
		return nil, processError("version path is a directory", src, nil)
	}

	dstInfo, err := s.statIfExists(dst)
	if err != nil {
		return nil, processError("failed to read destination", dst, err)
	}
	if dstInfo != nil && !overwrite {
		return nil, alreadyExists("destination file already exists", dst).WithHint(overwriteHint)
	}

	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, processError("failed to create parent directories", filepath.Dir(dst), err)
	}

	n, err := copyFile(s.fs, src, dst, srcInfo.Mode().Perm())
	if err != nil {
		return nil, processError("failed to restore version", dst, err)
	}

	s.logger.Info("version restored", "from", src, "to", dst, "bytes", n, "overwrite", dstInfo != nil)
	return &Outcome{Files: 1, Bytes: n}, nil
}

func copyFile(fsys afero.Fs, src, dst string, perm os.FileMode) (int64, error) {
	in, err := fsys.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
