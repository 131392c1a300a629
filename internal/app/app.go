package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"stv-go/internal/codec"
	"stv-go/internal/config"
	"stv-go/internal/database"
	"stv-go/internal/model"
	"stv-go/internal/stv"
	"stv-go/internal/vault"
	"stv-go/internal/watch"
)

// STVApp is the application layer between the CLI and stv.Service.
// It constructs all dependencies from config, resolves folder arguments,
// journals every destructive operation and, on Close, ships a snapshot of the
// journal to the vault.
type STVApp struct {
	cfg       *config.Config
	journal   *database.SQLiteJournal
	vault     stv.Vault
	service   *stv.Service
	logger    *slog.Logger
	logCloser io.Closer
	clock     stv.Clock
	mutated   bool
}

// Folder is a resolved folder argument.
type Folder struct {
	Path  string
	Label string // empty when the folder is not configured
}

// NewSTVApp creates a fully wired STVApp from the given config. Log lines are
// tee'd to stderr unless it is nil. The caller must call Close when done.
func NewSTVApp(ctx context.Context, cfg *config.Config, stderr io.Writer) (*STVApp, error) {
	clock := stv.RealClock{}

	logger, logCloser, err := newLogger(cfg.LogDir, cfg.Log, newOpID(clock.Now()), stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	var v stv.Vault
	if len(cfg.Vaults) > 0 {
		v, err = vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
		if err != nil {
			logCloser.Close()
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	journal, err := database.NewJournalFromConfig(cfg.Database)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	svc := stv.NewService(afero.NewOsFs(), journal, v, &slogAdapter{l: logger}, clock, stv.Options{
		HostID:             cfg.HostID,
		Ignore:             cfg.Filesystem.Ignore,
		ArchiveConcurrency: cfg.Archive.Concurrency,
	})

	return &STVApp{
		cfg:       cfg,
		journal:   journal,
		vault:     v,
		service:   svc,
		logger:    logger,
		logCloser: logCloser,
		clock:     clock,
	}, nil
}

// ResolveFolder maps a CLI folder argument to a path. A configured label
// takes precedence over a relative path of the same name.
func (a *STVApp) ResolveFolder(arg string) (Folder, error) {
	if arg == "" {
		return Folder{}, fmt.Errorf("folder is required")
	}
	if f, ok := a.cfg.FolderByLabel(arg); ok {
		return Folder{Path: f.Path, Label: f.Label}, nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return Folder{}, fmt.Errorf("resolving path: %w", err)
	}
	f := Folder{Path: abs}
	if c, ok := a.cfg.FolderByPath(abs); ok {
		f.Label = c.Label
	}
	return f, nil
}

// record journals one destructive operation around fn. The journal row is
// created before fn runs so an interrupted command still leaves a trace.
func (a *STVApp) record(name, folder, params string, fn func() (files, bytes int64, err error)) error {
	op := model.NewOperation(name, folder, params, a.clock.Now())
	if err := a.journal.CreateOperation(op); err != nil {
		return fmt.Errorf("journaling %s: %w", name, err)
	}
	a.mutated = true

	files, bytes, opErr := fn()
	op.Finish(a.clock.Now(), files, bytes, opErr)
	if err := a.journal.FinishOperation(op); err != nil {
		a.logger.Error("failed to finish journal entry", "operation", name, "id", op.ID, "error", err)
		if opErr == nil {
			return fmt.Errorf("finishing journal entry: %w", err)
		}
	}
	return opErr
}

func counts(out *stv.Outcome, err error) (int64, int64, error) {
	if out == nil {
		return 0, 0, err
	}
	return out.Files, out.Bytes, err
}

// ScanConflicts lists the conflict copies in a folder.
func (a *STVApp) ScanConflicts(folderArg string) ([]stv.ConflictRecord, error) {
	f, err := a.ResolveFolder(folderArg)
	if err != nil {
		return nil, err
	}
	records, _ := a.service.ScanConflicts(f.Path)
	if records == nil {
		records = []stv.ConflictRecord{}
	}
	return records, nil
}

// DiscardConflict deletes a conflict copy.
func (a *STVApp) DiscardConflict(folderArg, conflictRel string) (*stv.Outcome, error) {
	f, err := a.ResolveFolder(folderArg)
	if err != nil {
		return nil, err
	}
	var out *stv.Outcome
	err = a.record(OpDiscard, f.Path, formatParams("conflict", conflictRel), func() (int64, int64, error) {
		out, err = a.service.DiscardConflict(f.Path, conflictRel)
		return counts(out, err)
	})
	return out, err
}

// InferOriginal returns the path of the file a conflict copy was made from:
// the conflict's directory joined with its decoded name.
func InferOriginal(conflictRel string) (string, error) {
	rel := filepath.ToSlash(conflictRel)
	name := path.Base(rel)
	if !codec.IsConflict(name) {
		return "", &stv.Error{
			Kind:         stv.KindInvalidArgument,
			Message:      "not a conflict file name",
			Context:      conflictRel,
			RecoveryHint: "pass the original path explicitly",
		}
	}
	rec := stv.ConflictRecord{RelativePath: rel, OriginalName: codec.DecodeConflict(name)}
	return rec.OriginalRelativePath(), nil
}

// PromoteConflict replaces the original with the conflict copy. An empty
// originalRel is inferred from the conflict name.
func (a *STVApp) PromoteConflict(folderArg, conflictRel, originalRel string) (*stv.Outcome, error) {
	f, err := a.ResolveFolder(folderArg)
	if err != nil {
		return nil, err
	}
	if originalRel == "" {
		if originalRel, err = InferOriginal(conflictRel); err != nil {
			return nil, err
		}
	}
	var out *stv.Outcome
	err = a.record(OpPromote, f.Path, formatParams("conflict", conflictRel, "original", originalRel), func() (int64, int64, error) {
		out, err = a.service.PromoteConflict(f.Path, originalRel, conflictRel)
		return counts(out, err)
	})
	return out, err
}

// ListVersions lists one level of the versions directory.
func (a *STVApp) ListVersions(folderArg, prefix string) ([]stv.VersionEntry, error) {
	f, err := a.ResolveFolder(folderArg)
	if err != nil {
		return nil, err
	}
	return a.service.ListVersions(f.Path, prefix)
}

// InferRestoreTarget returns where a version restores to by default: the
// version's directory joined with the decoded original name.
func InferRestoreTarget(versionRel string) string {
	rel := filepath.ToSlash(versionRel)
	original, _, _ := codec.DecodeVersion(path.Base(rel))
	if dir := path.Dir(rel); dir != "." {
		return dir + "/" + original
	}
	return original
}

// RestoreVersion copies a version back into the folder. An empty dest is
// inferred from the version name.
func (a *STVApp) RestoreVersion(folderArg, versionRel, dest string, overwrite bool) (*stv.Outcome, error) {
	f, err := a.ResolveFolder(folderArg)
	if err != nil {
		return nil, err
	}
	if dest == "" {
		dest = InferRestoreTarget(versionRel)
	}
	params := formatParams("version", versionRel, "to", dest, "overwrite", fmt.Sprint(overwrite))
	var out *stv.Outcome
	err = a.record(OpRestore, f.Path, params, func() (int64, int64, error) {
		out, err = a.service.RestoreVersion(f.Path, versionRel, dest, overwrite)
		return counts(out, err)
	})
	return out, err
}

// StorageUsage reports the size of a folder's versions directory.
func (a *STVApp) StorageUsage(folderArg string) (*stv.StorageReport, error) {
	f, err := a.ResolveFolder(folderArg)
	if err != nil {
		return nil, err
	}
	return a.service.StorageUsage(f.Path)
}

// PruneAll deletes the whole versions directory, optionally archiving it
// first. A failed archive aborts the prune.
func (a *STVApp) PruneAll(ctx context.Context, folderArg string, archiveFirst bool) (*stv.RetentionResult, error) {
	f, err := a.ResolveFolder(folderArg)
	if err != nil {
		return nil, err
	}
	if archiveFirst {
		if _, err := a.archive(ctx, f); err != nil {
			return nil, fmt.Errorf("prune aborted: %w", err)
		}
	}

	var res *stv.RetentionResult
	err = a.record(OpPruneAll, f.Path, formatParams("archive", fmt.Sprint(archiveFirst)), func() (int64, int64, error) {
		return a.retention(&res, func() (*stv.RetentionResult, error) { return a.service.PruneAll(f.Path) })
	})
	return res, err
}

// PruneOlderThan deletes versions older than days, optionally archiving
// first. A failed archive aborts the prune.
func (a *STVApp) PruneOlderThan(ctx context.Context, folderArg string, days int, archiveFirst bool) (*stv.RetentionResult, error) {
	f, err := a.ResolveFolder(folderArg)
	if err != nil {
		return nil, err
	}
	if archiveFirst {
		if _, err := a.archive(ctx, f); err != nil {
			return nil, fmt.Errorf("prune aborted: %w", err)
		}
	}

	var res *stv.RetentionResult
	params := formatParams("days", fmt.Sprint(days), "archive", fmt.Sprint(archiveFirst))
	err = a.record(OpPruneOlder, f.Path, params, func() (int64, int64, error) {
		return a.retention(&res, func() (*stv.RetentionResult, error) { return a.service.PruneOlderThan(f.Path, days) })
	})
	return res, err
}

// retention runs a prune and turns an unsuccessful result into an error.
func (a *STVApp) retention(dst **stv.RetentionResult, fn func() (*stv.RetentionResult, error)) (int64, int64, error) {
	res, err := fn()
	*dst = res
	if err != nil {
		return 0, 0, err
	}
	if !res.Success {
		return 0, 0, &stv.Error{Kind: stv.KindProcess, Message: res.Error}
	}
	return res.FilesDeleted, res.BytesFreed, nil
}

// ArchivePush uploads a configured folder's versions to the vault.
func (a *STVApp) ArchivePush(ctx context.Context, folderArg string) (*stv.ArchiveResult, error) {
	f, err := a.ResolveFolder(folderArg)
	if err != nil {
		return nil, err
	}
	return a.archive(ctx, f)
}

// archive fails when any upload failed, so callers can gate deletions on it.
func (a *STVApp) archive(ctx context.Context, f Folder) (*stv.ArchiveResult, error) {
	if f.Label == "" {
		return nil, &stv.Error{
			Kind:         stv.KindInvalidArgument,
			Message:      "folder is not configured",
			Context:      f.Path,
			RecoveryHint: "add it under [[folders]] with a label to archive it",
		}
	}
	if a.vault != nil {
		if err := a.vault.ValidateSetup(ctx); err != nil {
			return nil, fmt.Errorf("vault not usable: %w", err)
		}
	}

	var res *stv.ArchiveResult
	err := a.record(OpArchivePush, f.Path, formatParams("label", f.Label), func() (int64, int64, error) {
		var err error
		res, err = a.service.ArchiveVersions(ctx, f.Path, f.Label)
		if err != nil {
			if res == nil {
				return 0, 0, err
			}
			return int64(res.Uploaded), res.BytesUploaded, err
		}
		if res.Failed > 0 {
			return int64(res.Uploaded), res.BytesUploaded, fmt.Errorf("%d of %d uploads failed", res.Failed, res.Failed+res.Uploaded+res.Skipped)
		}
		return int64(res.Uploaded), res.BytesUploaded, nil
	})
	return res, err
}

// ArchiveList lists archived objects under prefix.
func (a *STVApp) ArchiveList(ctx context.Context, prefix string) ([]stv.ObjectInfo, error) {
	objects, err := a.service.ListArchived(ctx, prefix)
	if objects == nil && err == nil {
		objects = []stv.ObjectInfo{}
	}
	return objects, err
}

// ArchiveGet downloads an archived object to dest.
func (a *STVApp) ArchiveGet(ctx context.Context, key, dest string, overwrite bool) (*stv.Outcome, error) {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	var out *stv.Outcome
	params := formatParams("key", key, "dest", abs, "overwrite", fmt.Sprint(overwrite))
	err = a.record(OpArchiveGet, "", params, func() (int64, int64, error) {
		out, err = a.service.FetchArchived(ctx, key, abs, overwrite)
		return counts(out, err)
	})
	return out, err
}

// ArchiveRemove deletes an archived object.
func (a *STVApp) ArchiveRemove(ctx context.Context, key string) (*stv.Outcome, error) {
	var out *stv.Outcome
	err := a.record(OpArchiveRemove, "", formatParams("key", key), func() (int64, int64, error) {
		var err error
		out, err = a.service.DeleteArchived(ctx, key)
		return counts(out, err)
	})
	return out, err
}

// History returns journaled operations, newest first. An empty folderArg
// lists every folder.
func (a *STVApp) History(folderArg string, limit int) ([]*model.Operation, error) {
	folder := ""
	if folderArg != "" {
		f, err := a.ResolveFolder(folderArg)
		if err != nil {
			return nil, err
		}
		folder = f.Path
	}
	return a.service.History(folder, limit)
}

// Watch reports conflict changes in a folder until ctx is cancelled.
func (a *STVApp) Watch(ctx context.Context, folderArg string, onChange func(watch.Change)) error {
	f, err := a.ResolveFolder(folderArg)
	if err != nil {
		return err
	}
	return watch.New(a.service, f.Path, watch.DefaultDebounce, &slogAdapter{l: a.logger}).Run(ctx, onChange)
}

// DefaultRetentionDays is the configured age used when a prune names none.
func (a *STVApp) DefaultRetentionDays() int {
	return a.cfg.Retention.DefaultDays
}

// JournalKey is the vault key of this host's journal snapshot.
func (a *STVApp) JournalKey() string {
	return path.Join(a.cfg.HostID, "journal", database.JournalFileName)
}

// Close closes all resources. When this run changed anything, the journal is
// first snapshotted and, if a vault is configured, uploaded to it.
func (a *STVApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	var tmpPath string
	if a.mutated && a.vault != nil {
		tmpFile, err := os.CreateTemp("", "stv-journal-*.db")
		if err != nil {
			keep(fmt.Errorf("creating temp file for journal snapshot: %w", err))
		} else {
			tmpPath = tmpFile.Name()
			tmpFile.Close()

			if err := a.journal.BackupTo(tmpPath); err != nil {
				keep(fmt.Errorf("snapshotting journal: %w", err))
				tmpPath = ""
			}
		}
	}

	if err := a.journal.Close(); err != nil {
		keep(fmt.Errorf("closing journal: %w", err))
	}

	if tmpPath != "" {
		if err := a.uploadJournal(tmpPath); err != nil {
			keep(err)
		}
		os.Remove(tmpPath)
	}

	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return firstErr
}

func (a *STVApp) uploadJournal(snapshot string) error {
	f, err := os.Open(snapshot)
	if err != nil {
		return fmt.Errorf("opening journal snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat journal snapshot: %w", err)
	}

	if err := a.vault.PutObject(context.Background(), a.JournalKey(), f, info.Size()); err != nil {
		return fmt.Errorf("uploading journal snapshot: %w", err)
	}
	a.logger.Info("journal snapshot uploaded", "key", a.JournalKey(), "bytes", info.Size())
	return nil
}
