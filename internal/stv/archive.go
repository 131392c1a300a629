package stv

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/marusama/semaphore/v2"
	"github.com/spf13/afero"

	stvfs "stv-go/internal/fs"
)

// ArchiveError records one version that could not be uploaded.
type ArchiveError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ArchiveResult reports an archive run. Failures never abort the run.
type ArchiveResult struct {
	Uploaded      int            `json:"uploaded"`
	Skipped       int            `json:"skipped"`
	Failed        int            `json:"failed"`
	BytesUploaded int64          `json:"bytes_uploaded"`
	Errors        []ArchiveError `json:"errors,omitempty"`
}

// ArchiveKey is the vault key of a version file: host, folder label, then the
// slash-separated path inside the versions directory.
func (s *Service) ArchiveKey(label, versionRel string) string {
	return path.Join(s.opts.HostID, label, versionRel)
}

func (s *Service) requireVault() error {
	if s.vault == nil {
		return invalidArgument("no vault configured", "", nil)
	}
	return nil
}

// ArchiveVersions uploads every file below the versions directory of folder
// to the vault. Objects that already exist with the same size are skipped.
// Uploads run concurrently, bounded by the configured concurrency.
func (s *Service) ArchiveVersions(ctx context.Context, folder, label string) (*ArchiveResult, error) {
	if err := s.requireVault(); err != nil {
		return nil, err
	}
	if label == "" {
		return nil, invalidArgument("folder label is required", folder, nil)
	}

	dir := versionsDir(folder)
	info, err := s.statIfExists(dir)
	if err != nil {
		return nil, processError("failed to read versions directory", dir, err)
	}
	result := &ArchiveResult{}
	if info == nil {
		return result, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.New(s.opts.ArchiveConcurrency)
	)
	record := func(e stvfs.Entry, uploaded bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, ArchiveError{Path: e.RelPath, Message: err.Error()})
		case uploaded:
			result.Uploaded++
			result.BytesUploaded += e.Size
		default:
			result.Skipped++
		}
	}

	walker := stvfs.NewWalker(s.fs, stvfs.WalkOptions{})
	_, walkErr := walker.Walk(dir, func(e stvfs.Entry) error {
		if e.IsDir {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			uploaded, err := s.archiveOne(ctx, s.ArchiveKey(label, e.RelPath), e)
			record(e, uploaded, err)
		}()
		return nil
	})
	wg.Wait()

	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Path < result.Errors[j].Path })
	s.logger.Info("versions archived",
		"folder", folder,
		"uploaded", result.Uploaded,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"bytes", result.BytesUploaded,
	)

	if walkErr != nil {
		return result, fmt.Errorf("archiving interrupted: %w", walkErr)
	}
	return result, nil
}

func (s *Service) archiveOne(ctx context.Context, key string, e stvfs.Entry) (bool, error) {
	existing, err := s.vault.StatObject(ctx, key)
	switch {
	case err == nil && existing.Size == e.Size:
		s.logger.Debug("archive object up to date", "key", key)
		return false, nil
	case err != nil && !errors.Is(err, ErrObjectNotFound):
		return false, fmt.Errorf("checking %s: %w", key, err)
	}

	f, err := s.fs.Open(e.Path)
	if err != nil {
		return false, fmt.Errorf("opening version: %w", err)
	}
	defer f.Close()

	if err := s.vault.PutObject(ctx, key, f, e.Size); err != nil {
		return false, fmt.Errorf("uploading %s: %w", key, err)
	}
	s.logger.Debug("version archived", "key", key, "size", e.Size)
	return true, nil
}

// ListArchived returns archived objects whose key starts with prefix.
func (s *Service) ListArchived(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := s.requireVault(); err != nil {
		return nil, err
	}
	objects, err := s.vault.ListObjects(ctx, prefix)
	if err != nil {
		return nil, processError("failed to list archive", prefix, err)
	}
	return objects, nil
}

// FetchArchived downloads key to dest. The download goes to a temporary file
// next to dest and is renamed into place, so dest is never left half written.
func (s *Service) FetchArchived(ctx context.Context, key, dest string, overwrite bool) (*Outcome, error) {
	if err := s.requireVault(); err != nil {
		return nil, err
	}

	dstInfo, err := s.statIfExists(dest)
	if err != nil {
		return nil, processError("failed to read destination", dest, err)
	}
	if dstInfo != nil && !overwrite {
		return nil, alreadyExists("destination file already exists", dest).WithHint(overwriteHint)
	}

	dir := filepath.Dir(dest)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, processError("failed to create parent directories", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".stv-fetch-*")
	if err != nil {
		return nil, processError("failed to create temp file", dir, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { s.fs.Remove(tmpPath) }

	err = s.vault.GetObject(ctx, key, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		if errors.Is(err, ErrObjectNotFound) {
			return nil, notFound("archived object not found", key)
		}
		return nil, processError("failed to download", key, err)
	}

	info, err := s.fs.Stat(tmpPath)
	if err != nil {
		cleanup()
		return nil, processError("failed to read download", tmpPath, err)
	}
	if err := s.fs.Rename(tmpPath, dest); err != nil {
		cleanup()
		return nil, processError("failed to move download into place", dest, err)
	}

	s.logger.Info("archived version fetched", "key", key, "dest", dest, "bytes", info.Size())
	return &Outcome{Files: 1, Bytes: info.Size()}, nil
}

// DeleteArchived removes key from the vault.
func (s *Service) DeleteArchived(ctx context.Context, key string) (*Outcome, error) {
	if err := s.requireVault(); err != nil {
		return nil, err
	}

	info, err := s.vault.StatObject(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, notFound("archived object not found", key)
	}
	if err != nil {
		return nil, processError("failed to read archived object", key, err)
	}

	if err := s.vault.DeleteObject(ctx, key); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, notFound("archived object not found", key)
		}
		return nil, processError("failed to delete archived object", key, err)
	}
	s.logger.Info("archived object deleted", "key", key)
	return &Outcome{Files: 1, Bytes: info.Size}, nil
}
