// Package codec decodes and encodes the two filename conventions the sync
// daemon uses: conflict copies ("name.sync-conflict-<token>.ext") and
// historical versions ("name~YYYYMMDD-HHMMSS.ext").
//
// Every function here is total: any input has a defined result and nothing
// touches the filesystem.
package codec

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// ConflictMarker is the literal substring that marks a conflict copy.
	ConflictMarker = ".sync-conflict-"

	// VersionSeparator separates the original stem from the version timestamp.
	VersionSeparator = "~"

	// versionStampLayout is the on-disk timestamp grammar YYYYMMDD-HHMMSS.
	versionStampLayout = "20060102-150405"
	versionStampLen    = 15
	versionStampDash   = 8
)

// IsConflict reports whether name carries the conflict marker.
func IsConflict(name string) bool {
	return strings.Contains(name, ConflictMarker)
}

// DecodeConflict returns the original filename a conflict copy was made from.
//
// Everything before the first marker is kept. The extension is the text from
// the last '.' at or after the marker, so "a.sync-conflict-X.tar.gz" decodes
// to "a.gz". Names without the marker are returned unchanged.
func DecodeConflict(name string) string {
	pos := strings.Index(name, ConflictMarker)
	if pos < 0 {
		return name
	}
	before := name[:pos]
	token := name[pos+len(ConflictMarker):]

	dot := strings.LastIndex(token, ".")
	if dot < 0 {
		return before
	}
	return before + token[dot:]
}

// DecodeVersion splits a version filename into the original name and the
// human-formatted timestamp "YYYY-MM-DD HH:MM:SS".
//
// The suffix after the last '~' up to the first following '.' must be exactly
// 15 characters with '-' at index 8. Anything else decodes to (name, "", false)
// with the tilde left in place.
func DecodeVersion(name string) (original string, stamp string, ok bool) {
	tilde := strings.LastIndex(name, VersionSeparator)
	if tilde < 0 {
		return name, "", false
	}
	beforeTilde := name[:tilde]
	afterTilde := name[tilde+1:]

	versionPart, ext := afterTilde, ""
	if dot := strings.Index(afterTilde, "."); dot >= 0 {
		versionPart, ext = afterTilde[:dot], afterTilde[dot:]
	}

	if !validVersionStamp(versionPart) {
		return name, "", false
	}
	return beforeTilde + ext, formatVersionStamp(versionPart), true
}

// validVersionStamp checks only the shape the daemon guarantees: length and
// the dash position. Digits are not validated.
func validVersionStamp(s string) bool {
	return len(s) == versionStampLen && s[versionStampDash] == '-'
}

func formatVersionStamp(s string) string {
	var b strings.Builder
	b.Grow(19)
	b.WriteString(s[0:4])
	b.WriteByte('-')
	b.WriteString(s[4:6])
	b.WriteByte('-')
	b.WriteString(s[6:8])
	b.WriteByte(' ')
	b.WriteString(s[9:11])
	b.WriteByte(':')
	b.WriteString(s[11:13])
	b.WriteByte(':')
	b.WriteString(s[13:15])
	return b.String()
}

// EncodeVersion builds the name the daemon gives a historical version of name
// archived at t: the timestamp goes between the stem and the last extension.
func EncodeVersion(name string, t time.Time) string {
	stem, ext := splitExt(name)
	return stem + VersionSeparator + t.Format(versionStampLayout) + ext
}

// EncodeConflict builds a conflict copy name for name created at t by the
// device whose short ID is shortID.
func EncodeConflict(name string, t time.Time, shortID string) string {
	stem, ext := splitExt(name)
	return stem + ConflictMarker + t.Format(versionStampLayout) + "-" + shortID + ext
}

func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)], ext
}
