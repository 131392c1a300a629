package stv_test

import (
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/spf13/afero"

	"stv-go/internal/stv"
	"stv-go/internal/testutil"
)

const folder = "/home/user/Sync/docs"

func newTestService(t *testing.T, fsys afero.Fs, opts stv.Options) *stv.Service {
	t.Helper()
	if opts.HostID == "" {
		opts.HostID = "host-1"
	}
	return stv.NewService(fsys, testutil.NewTestJournal(t), testutil.NewTestVault(), stv.NewNopLogger(), testutil.FixedClock(), opts)
}

func relPaths(records []stv.ConflictRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.RelativePath
	}
	sort.Strings(out)
	return out
}

func TestService_ScanConflicts(t *testing.T) {
	mtime := time.Date(2023, 12, 1, 12, 0, 0, 0, time.UTC)
	fsys := afero.NewMemMapFs()
	testutil.WriteTree(t, fsys, folder, map[string]testutil.FixtureFile{
		"report.txt": {Content: "original"},
		"report.sync-conflict-20231201-120000-ABCDEFG.txt": {Content: "theirs", ModTime: mtime},
		"sub/deeper/notes.sync-conflict-20231202-080000-XYZ.md": {Content: "n"},
		"sub/plain.md": {Content: "p"},
		".hidden/x.sync-conflict-20231201-120000-ABC.txt": {Content: "hidden dir"},
		".dot.sync-conflict-20231201-120000-ABC": {Content: "hidden file"},
		".stversions/old.sync-conflict-20231201-120000-ABC.txt": {Content: "versioned"},
		"tmp/skip.sync-conflict-20231201-120000-ABC.txt": {Content: "ignored"},
	})

	svc := newTestService(t, fsys, stv.Options{Ignore: []string{"tmp"}})
	records, stats := svc.ScanConflicts(folder)

	want := []string{
		"report.sync-conflict-20231201-120000-ABCDEFG.txt",
		"sub/deeper/notes.sync-conflict-20231202-080000-XYZ.md",
	}
	got := relPaths(records)
	if len(got) != len(want) {
		t.Fatalf("ScanConflicts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %q, want %q", i, got[i], want[i])
		}
	}
	if stats.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", stats.Skipped)
	}

	for _, r := range records {
		if r.RelativePath != want[0] {
			continue
		}
		if r.OriginalName != "report.txt" {
			t.Errorf("OriginalName = %q, want report.txt", r.OriginalName)
		}
		if r.Size != int64(len("theirs")) {
			t.Errorf("Size = %d, want %d", r.Size, len("theirs"))
		}
		if r.ModifiedAt == nil || *r.ModifiedAt != mtime.Unix() {
			t.Errorf("ModifiedAt = %v, want %d", r.ModifiedAt, mtime.Unix())
		}
	}
}

func TestService_ScanConflicts_MissingFolder(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs(), stv.Options{})

	records, _ := svc.ScanConflicts("/does/not/exist")
	if len(records) != 0 {
		t.Errorf("ScanConflicts() = %v, want empty", records)
	}
}

func TestService_ScanConflicts_RescansEveryCall(t *testing.T) {
	fsys := afero.NewMemMapFs()
	svc := newTestService(t, fsys, stv.Options{})

	if records, _ := svc.ScanConflicts(folder); len(records) != 0 {
		t.Fatalf("first scan = %v, want empty", records)
	}
	testutil.WriteFile(t, fsys, filepath.Join(folder, "a.sync-conflict-1.txt"), "x", time.Time{})
	if records, _ := svc.ScanConflicts(folder); len(records) != 1 {
		t.Fatalf("second scan found %d records, want 1", len(records))
	}
}

func TestConflictRecord_OriginalRelativePath(t *testing.T) {
	tests := []struct {
		rec  stv.ConflictRecord
		want string
	}{
		{rec: stv.ConflictRecord{RelativePath: "a.sync-conflict-1.txt", OriginalName: "a.txt"}, want: "a.txt"},
		{rec: stv.ConflictRecord{RelativePath: "x/y/a.sync-conflict-1.txt", OriginalName: "a.txt"}, want: "x/y/a.txt"},
	}
	for _, tt := range tests {
		if got := tt.rec.OriginalRelativePath(); got != tt.want {
			t.Errorf("OriginalRelativePath(%q) = %q, want %q", tt.rec.RelativePath, got, tt.want)
		}
	}
}

func TestService_DiscardConflict(t *testing.T) {
	conflict := "sub/a.sync-conflict-20231201-120000-ABC.txt"

	t.Run("deletes the conflict and keeps the original", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		testutil.WriteTree(t, fsys, folder, map[string]testutil.FixtureFile{
			"sub/a.txt": {Content: "mine"},
			conflict:    {Content: "theirs"},
		})
		svc := newTestService(t, fsys, stv.Options{})

		out, err := svc.DiscardConflict(folder, conflict)
		if err != nil {
			t.Fatalf("DiscardConflict() error = %v", err)
		}
		if out.Files != 1 || out.Bytes != int64(len("theirs")) {
			t.Errorf("Outcome = %+v", out)
		}
		if testutil.Exists(t, fsys, filepath.Join(folder, conflict)) {
			t.Error("conflict still exists")
		}
		if got := testutil.ReadFile(t, fsys, filepath.Join(folder, "sub/a.txt")); got != "mine" {
			t.Errorf("original = %q, want mine", got)
		}
	})

	t.Run("missing conflict is a no-op", func(t *testing.T) {
		svc := newTestService(t, afero.NewMemMapFs(), stv.Options{})
		out, err := svc.DiscardConflict(folder, conflict)
		if err != nil {
			t.Fatalf("DiscardConflict() error = %v", err)
		}
		if out.Files != 0 {
			t.Errorf("Files = %d, want 0", out.Files)
		}
	})

	t.Run("delete failure is a process error", func(t *testing.T) {
		mem := afero.NewMemMapFs()
		testutil.WriteTree(t, mem, folder, map[string]testutil.FixtureFile{conflict: {Content: "x"}})
		svc := newTestService(t, afero.NewReadOnlyFs(mem), stv.Options{})

		_, err := svc.DiscardConflict(folder, conflict)
		if !errors.Is(err, stv.ErrProcess) {
			t.Fatalf("DiscardConflict() error = %v, want ErrProcess", err)
		}
	})

	t.Run("directory is a process error", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		fsys.MkdirAll(filepath.Join(folder, "d.sync-conflict-1"), 0o755)
		svc := newTestService(t, fsys, stv.Options{})

		if _, err := svc.DiscardConflict(folder, "d.sync-conflict-1"); !errors.Is(err, stv.ErrProcess) {
			t.Fatalf("DiscardConflict() error = %v, want ErrProcess", err)
		}
	})

	t.Run("paths outside the folder are refused", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		testutil.WriteFile(t, fsys, "/home/user/Sync/secret.txt", "s", time.Time{})
		svc := newTestService(t, fsys, stv.Options{})

		for _, rel := range []string{"../secret.txt", "/home/user/Sync/secret.txt", "", "."} {
			if _, err := svc.DiscardConflict(folder, rel); !errors.Is(err, stv.ErrInvalidArgument) {
				t.Errorf("DiscardConflict(%q) error = %v, want ErrInvalidArgument", rel, err)
			}
		}
		if !testutil.Exists(t, fsys, "/home/user/Sync/secret.txt") {
			t.Error("file outside the folder was deleted")
		}
	})
}

func TestService_PromoteConflict(t *testing.T) {
	original := "a.txt"
	conflict := "a.sync-conflict-20231201-120000-ABC.txt"

	tests := []struct {
		name        string
		files       map[string]testutil.FixtureFile
		wantFiles   int64
		wantBytes   int64
		wantRemoved int64
		wantBody    string // expected content at original, "" for absent
	}{
		{
			name: "replaces existing original",
			files: map[string]testutil.FixtureFile{
				original: {Content: "mine"},
				conflict: {Content: "theirs"},
			},
			wantFiles: 1,
			wantBytes: 6,
			wantBody:  "theirs",
		},
		{
			name:      "original already absent",
			files:     map[string]testutil.FixtureFile{conflict: {Content: "theirs"}},
			wantFiles: 1,
			wantBytes: 6,
			wantBody:  "theirs",
		},
		{
			name:      "neither exists",
			files:     map[string]testutil.FixtureFile{},
			wantFiles: 0,
		},
		{
			name:        "conflict gone reports deleted original",
			files:       map[string]testutil.FixtureFile{original: {Content: "mine"}},
			wantFiles:   1,
			wantBytes:   4,
			wantRemoved: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			fsys.MkdirAll(folder, 0o755)
			testutil.WriteTree(t, fsys, folder, tt.files)
			svc := newTestService(t, fsys, stv.Options{})

			out, err := svc.PromoteConflict(folder, original, conflict)
			if err != nil {
				t.Fatalf("PromoteConflict() error = %v", err)
			}
			if out.Files != tt.wantFiles || out.Bytes != tt.wantBytes || out.Removed != tt.wantRemoved {
				t.Errorf("Outcome = %+v, want Files=%d Bytes=%d Removed=%d", *out, tt.wantFiles, tt.wantBytes, tt.wantRemoved)
			}
			if testutil.Exists(t, fsys, filepath.Join(folder, conflict)) {
				t.Error("conflict file still exists")
			}

			origPath := filepath.Join(folder, original)
			if tt.wantBody == "" {
				if testutil.Exists(t, fsys, origPath) {
					t.Error("original unexpectedly exists")
				}
				return
			}
			if got := testutil.ReadFile(t, fsys, origPath); got != tt.wantBody {
				t.Errorf("original content = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestService_PromoteConflict_Errors(t *testing.T) {
	t.Run("original is a directory", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		fsys.MkdirAll(filepath.Join(folder, "a.txt"), 0o755)
		testutil.WriteFile(t, fsys, filepath.Join(folder, "a.sync-conflict-1.txt"), "x", time.Time{})
		svc := newTestService(t, fsys, stv.Options{})

		if _, err := svc.PromoteConflict(folder, "a.txt", "a.sync-conflict-1.txt"); !errors.Is(err, stv.ErrProcess) {
			t.Fatalf("PromoteConflict() error = %v, want ErrProcess", err)
		}
	})

	t.Run("read-only filesystem", func(t *testing.T) {
		mem := afero.NewMemMapFs()
		testutil.WriteTree(t, mem, folder, map[string]testutil.FixtureFile{
			"a.txt":                 {Content: "mine"},
			"a.sync-conflict-1.txt": {Content: "theirs"},
		})
		svc := newTestService(t, afero.NewReadOnlyFs(mem), stv.Options{})

		if _, err := svc.PromoteConflict(folder, "a.txt", "a.sync-conflict-1.txt"); !errors.Is(err, stv.ErrProcess) {
			t.Fatalf("PromoteConflict() error = %v, want ErrProcess", err)
		}
	})

	t.Run("original and conflict are the same file", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		conflictPath := filepath.Join(folder, "a.sync-conflict-1.txt")
		testutil.WriteFile(t, fsys, conflictPath, "theirs", time.Time{})
		svc := newTestService(t, fsys, stv.Options{})

		for _, original := range []string{"a.sync-conflict-1.txt", "./sub/../a.sync-conflict-1.txt"} {
			if _, err := svc.PromoteConflict(folder, original, "a.sync-conflict-1.txt"); !errors.Is(err, stv.ErrInvalidArgument) {
				t.Fatalf("PromoteConflict(%q) error = %v, want ErrInvalidArgument", original, err)
			}
		}
		if got := testutil.ReadFile(t, fsys, conflictPath); got != "theirs" {
			t.Errorf("conflict content = %q, want %q", got, "theirs")
		}
	})

	t.Run("escaping original", func(t *testing.T) {
		svc := newTestService(t, afero.NewMemMapFs(), stv.Options{})
		if _, err := svc.PromoteConflict(folder, "../../etc/passwd", "a.sync-conflict-1.txt"); !errors.Is(err, stv.ErrInvalidArgument) {
			t.Fatalf("PromoteConflict() error = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestService_WatchDirs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	testutil.WriteTree(t, fsys, folder, map[string]testutil.FixtureFile{
		"a/b/file.txt":        {Content: "x"},
		".stversions/v~1.txt": {Content: "v"},
		".git/config":         {Content: "c"},
	})
	svc := newTestService(t, fsys, stv.Options{})

	got := svc.WatchDirs(folder)
	sort.Strings(got)
	want := []string{folder, filepath.Join(folder, "a"), filepath.Join(folder, "a", "b")}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("WatchDirs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("WatchDirs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
