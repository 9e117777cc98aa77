// Package filex provides filename sanitization for user-supplied names that
// end up in object-storage keys. The transformation is deterministic and
// idempotent: sanitizing an already-sanitized name returns it unchanged.
package filex

import (
	"fmt"
	"strings"
	"time"

	"github.com/dkarpov/filevault/internal/common"
)

const maxFilenameLength = 255

// dangerous sequences removed outright before any other processing:
// traversal tokens, path separators and NUL.
var dangerousPatterns = []string{"..", "/", "\\", "\x00"}

// Sanitize converts a raw filename into a name that is safe to embed in a
// storage key: no traversal tokens, no separators, only [A-Za-z0-9._-],
// at most 255 characters (extension preserved on truncation).
//
// Returns common.ErrInvalidFilename for blank input. If nothing survives
// sanitization, a placeholder name derived from the current time is returned.
func Sanitize(filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", common.ErrInvalidFilename
	}

	// Strip to a fixpoint: removing a separator can splice two dots into a
	// fresh ".." (e.g. "a./.b"), so a single pass is not enough.
	sanitized := filename
	for {
		prev := sanitized
		for _, pattern := range dangerousPatterns {
			sanitized = strings.ReplaceAll(sanitized, pattern, "")
		}
		if sanitized == prev {
			break
		}
	}

	sanitized = strings.TrimSpace(sanitized)
	sanitized = strings.Trim(sanitized, ".")

	var b strings.Builder
	b.Grow(len(sanitized))
	for _, r := range sanitized {
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	sanitized = b.String()

	if len(sanitized) > maxFilenameLength {
		ext := extension(sanitized)
		if len(ext) >= maxFilenameLength {
			// The extension alone fills the limit; a plain cut keeps some of
			// the base name and cannot produce a leading dot.
			sanitized = sanitized[:maxFilenameLength]
		} else {
			sanitized = sanitized[:maxFilenameLength-len(ext)] + ext
		}
	}

	if sanitized == "" {
		sanitized = fmt.Sprintf("file_%d", time.Now().UnixMilli())
	}

	return sanitized, nil
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}

// extension returns the suffix starting at the last dot, or "" when the name
// has no extension or starts with the only dot.
func extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i <= 0 {
		return ""
	}
	return filename[i:]
}
