// Package stv implements conflict reconciliation and version keeping for
// folders managed by a file synchronization daemon.
//
// Every operation re-reads the filesystem; nothing is cached between calls.
package stv

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	stvfs "stv-go/internal/fs"
)

// VersionsDirName is the directory, directly under a folder root, where the
// sync daemon keeps historical versions.
const VersionsDirName = ".stversions"

const defaultArchiveConcurrency = 4

// Options carries settings that come from configuration.
type Options struct {
	// HostID is the root of every archive key written by this host.
	HostID string

	// Ignore holds glob patterns excluded from conflict scans.
	Ignore []string

	// ArchiveConcurrency bounds parallel uploads. Zero means the default of 4.
	ArchiveConcurrency int
}

// Service is the orchestration layer behind the CLI. It is safe to share
// across goroutines; it holds no mutable state.
type Service struct {
	fs      afero.Fs
	journal Journal
	vault   Vault
	logger  Logger
	clock   Clock
	opts    Options
}

// NewService creates a Service. vault may be nil when no vault is configured;
// archive operations then fail with KindInvalidArgument.
func NewService(fsys afero.Fs, journal Journal, vault Vault, logger Logger, clock Clock, opts Options) *Service {
	if opts.ArchiveConcurrency <= 0 {
		opts.ArchiveConcurrency = defaultArchiveConcurrency
	}
	return &Service{
		fs:      fsys,
		journal: journal,
		vault:   vault,
		logger:  logger,
		clock:   clock,
		opts:    opts,
	}
}

// Outcome reports what a single-target operation changed.
type Outcome struct {
	Files int64 `json:"files"`
	Bytes int64 `json:"bytes"`

	// Removed counts files deleted with nothing put in their place.
	Removed int64 `json:"removed,omitempty"`
}

// versionsDir returns the versions directory of folder.
func versionsDir(folder string) string {
	return filepath.Join(folder, VersionsDirName)
}

// resolve joins a caller-supplied relative path onto root, refusing anything
// that escapes it.
func resolve(root, rel string) (string, error) {
	p, err := stvfs.Join(root, rel)
	if err != nil {
		return "", invalidArgument("path outside folder", rel, err)
	}
	return p, nil
}

// resolveTarget is resolve for paths that must name an entry below root,
// not root itself.
func resolveTarget(root, rel string) (string, error) {
	p, err := resolve(root, rel)
	if err != nil {
		return "", err
	}
	if p == filepath.Clean(root) {
		return "", invalidArgument("path names the folder itself", rel, nil)
	}
	return p, nil
}

// statIfExists returns (nil, nil) when path does not exist.
func (s *Service) statIfExists(path string) (os.FileInfo, error) {
	info, err := s.fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

func unixSeconds(info os.FileInfo) *int64 {
	if info.ModTime().IsZero() {
		return nil
	}
	sec := info.ModTime().Unix()
	return &sec
}
