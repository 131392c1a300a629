package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"stv-go/internal/stv"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatUnix(sec *int64) string {
	if sec == nil {
		return "-"
	}
	return time.Unix(*sec, 0).Format("2006-01-02 15:04:05")
}

func printConflicts(w io.Writer, records []stv.ConflictRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No conflicts found.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s  %10s  %s  -> %s\n",
			formatUnix(r.ModifiedAt),
			stv.FormatBytes(r.Size),
			r.RelativePath,
			r.OriginalRelativePath(),
		)
	}
}

func printVersions(w io.Writer, entries []stv.VersionEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No versions found.")
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(w, "%s  %10s  %s/\n", formatUnix(e.ModifiedAt), "dir", e.FileName)
			continue
		}
		stamp := e.VersionTimestamp
		if stamp == "" {
			stamp = "-"
		}
		fmt.Fprintf(w, "%s  %10s  %-19s  %s  (%s)\n",
			formatUnix(e.ModifiedAt),
			stv.FormatBytes(*e.Size),
			stamp,
			e.FileName,
			e.OriginalName,
		)
	}
}

func printRetention(w io.Writer, res *stv.RetentionResult) {
	fmt.Fprintf(w, "Deleted %d file(s), freed %s", res.FilesDeleted, stv.FormatBytes(res.BytesFreed))
	if res.DirsRemoved > 0 {
		fmt.Fprintf(w, ", removed %d empty dir(s)", res.DirsRemoved)
	}
	fmt.Fprintln(w)
}

func printArchive(w io.Writer, res *stv.ArchiveResult) {
	fmt.Fprintf(w, "Uploaded %d, skipped %d, failed %d (%s)\n",
		res.Uploaded, res.Skipped, res.Failed, stv.FormatBytes(res.BytesUploaded))
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s: %s\n", e.Path, e.Message)
	}
}

// confirm asks a yes/no question on stdin. Non-interactive stdin is refused
// so scripts must pass --yes explicitly.
func confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal; pass --yes to confirm")
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
