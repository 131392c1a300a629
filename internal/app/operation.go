package app

import (
	"fmt"
	"strings"
	"time"
)

// Journaled operation names.
const (
	OpDiscard       = "discard"
	OpPromote       = "promote"
	OpRestore       = "restore"
	OpPruneAll      = "prune-all"
	OpPruneOlder    = "prune-older"
	OpArchivePush   = "archive-push"
	OpArchiveGet    = "archive-get"
	OpArchiveRemove = "archive-rm"
)

// newOpID returns the identifier written in every log line of one CLI run.
func newOpID(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// formatParams renders alternating key/value pairs as "k=v k=v" for the
// journal's parameters column. Empty values are left out; a dangling key is
// ignored.
func formatParams(kv ...string) string {
	var parts []string
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", kv[i], kv[i+1]))
	}
	return strings.Join(parts, " ")
}
