package stv_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"stv-go/internal/stv"
	"stv-go/internal/testutil"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1, "1 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1048576, "1.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
		{3 * 1024 * 1024 * 1024 * 1024, "3.00 TB"},
		{2048 * 1024 * 1024 * 1024 * 1024, "2048.00 TB"},
	}
	for _, tt := range tests {
		if got := stv.FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestService_StorageUsage(t *testing.T) {
	t.Run("missing versions directory", func(t *testing.T) {
		svc := newTestService(t, afero.NewMemMapFs(), stv.Options{})

		report, err := svc.StorageUsage(folder)
		if err != nil {
			t.Fatalf("StorageUsage() error = %v", err)
		}
		if report.Exists || report.TotalBytes != 0 || report.FileCount != 0 || report.TotalFormatted != "0 B" {
			t.Errorf("StorageUsage() = %+v", report)
		}
	})

	t.Run("sums nested files", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		testutil.WriteTree(t, fsys, versionsRoot, map[string]testutil.FixtureFile{
			"a~20240101-000000.txt":       {Content: "12345"},
			"x/y/b~20240101-000000.txt":   {Content: "123"},
			".hidden~20240101-000000.txt": {Content: "12"},
		})
		svc := newTestService(t, fsys, stv.Options{})

		report, err := svc.StorageUsage(folder)
		if err != nil {
			t.Fatalf("StorageUsage() error = %v", err)
		}
		if !report.Exists || report.TotalBytes != 10 || report.FileCount != 3 || report.TotalFormatted != "10 B" {
			t.Errorf("StorageUsage() = %+v", report)
		}
	})
	t.Run("counts links to files", func(t *testing.T) {
		root := t.TempDir()
		versions := filepath.Join(root, stv.VersionsDirName)
		if err := os.MkdirAll(versions, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(versions, "a~20240101-000000.txt"), []byte("12345"), 0o644); err != nil {
			t.Fatal(err)
		}
		target := filepath.Join(root, "target.bin")
		if err := os.WriteFile(target, []byte("0123456789"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(target, filepath.Join(versions, "linked~20240101-000000.bin")); err != nil {
			t.Skipf("symlinks unsupported: %v", err)
		}
		if err := os.Symlink(filepath.Join(root, "missing"), filepath.Join(versions, "dangling")); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(root, filepath.Join(versions, "loop")); err != nil {
			t.Fatal(err)
		}
		svc := newTestService(t, afero.NewOsFs(), stv.Options{})

		report, err := svc.StorageUsage(root)
		if err != nil {
			t.Fatalf("StorageUsage() error = %v", err)
		}
		if report.TotalBytes != 15 || report.FileCount != 2 {
			t.Errorf("StorageUsage() = %+v, want 15 bytes in 2 files", report)
		}
	})
}
