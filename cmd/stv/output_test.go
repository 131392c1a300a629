package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"stv-go/internal/stv"
)

func TestPrintConflicts(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		printConflicts(&buf, nil)
		if got := buf.String(); got != "No conflicts found.\n" {
			t.Errorf("output = %q", got)
		}
	})

	t.Run("record line", func(t *testing.T) {
		var buf bytes.Buffer
		printConflicts(&buf, []stv.ConflictRecord{{
			RelativePath: "notes/a.sync-conflict-20240101-120000-ABC.txt",
			OriginalName: "a.txt",
			Size:         1536,
		}})
		got := buf.String()
		for _, want := range []string{"-  ", "1.50 KB", "notes/a.sync-conflict-20240101-120000-ABC.txt", "-> notes/a.txt"} {
			if !strings.Contains(got, want) {
				t.Errorf("output %q missing %q", got, want)
			}
		}
	})
}

func TestPrintVersions(t *testing.T) {
	size := int64(10)
	var buf bytes.Buffer
	printVersions(&buf, []stv.VersionEntry{
		{FileName: "sub", OriginalName: "sub", Type: stv.EntryDirectory},
		{
			FileName:         "doc~20231215-143022.pdf",
			OriginalName:     "doc.pdf",
			Type:             stv.EntryFile,
			Size:             &size,
			VersionTimestamp: "2023-12-15 14:30:22",
		},
		{FileName: "plain.txt", OriginalName: "plain.txt", Type: stv.EntryFile, Size: &size},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), buf.String())
	}
	if !strings.HasSuffix(lines[0], "sub/") {
		t.Errorf("directory line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "2023-12-15 14:30:22") || !strings.HasSuffix(lines[1], "(doc.pdf)") {
		t.Errorf("version line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "10 B") || !strings.HasSuffix(lines[2], "plain.txt  (plain.txt)") {
		t.Errorf("unversioned line = %q", lines[2])
	}
}

func TestPrintRetention(t *testing.T) {
	tests := []struct {
		name string
		res  stv.RetentionResult
		want string
	}{
		{
			name: "files only",
			res:  stv.RetentionResult{Success: true, FilesDeleted: 2, BytesFreed: 2048},
			want: "Deleted 2 file(s), freed 2.00 KB\n",
		},
		{
			name: "with empty dirs",
			res:  stv.RetentionResult{Success: true, FilesDeleted: 1, BytesFreed: 5, DirsRemoved: 3},
			want: "Deleted 1 file(s), freed 5 B, removed 3 empty dir(s)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printRetention(&buf, &tt.res)
			if got := buf.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintArchive(t *testing.T) {
	var buf bytes.Buffer
	printArchive(&buf, &stv.ArchiveResult{
		Uploaded:      3,
		Skipped:       1,
		Failed:        1,
		BytesUploaded: 1024,
		Errors:        []stv.ArchiveError{{Path: "sub/b~20240101-000000.txt", Message: "boom"}},
	})
	want := "Uploaded 3, skipped 1, failed 1 (1.00 KB)\n  sub/b~20240101-000000.txt: boom\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, []stv.ConflictRecord{{RelativePath: "a.sync-conflict-x.txt", OriginalName: "a.txt", Size: 4}}); err != nil {
		t.Fatalf("printJSON() error = %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded[0]["inferred_original_name"] != "a.txt" {
		t.Errorf("inferred_original_name = %v", decoded[0]["inferred_original_name"])
	}
	if _, ok := decoded[0]["modified_at"]; ok {
		t.Error("modified_at should be omitted when unknown")
	}
}

func TestFormatUnix(t *testing.T) {
	if got := formatUnix(nil); got != "-" {
		t.Errorf("formatUnix(nil) = %q, want %q", got, "-")
	}
}
