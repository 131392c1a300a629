package vault

import (
	"fmt"
	"path"
	"strings"
)

// validateKey rejects keys that are empty, absolute, or would escape the
// vault root when mapped onto a filesystem.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid object key %q", key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("object key %q is not in canonical form", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}
