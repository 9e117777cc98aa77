// Package mimex validates MIME content types against a configured allow-list.
package mimex

import (
	"fmt"
	"strings"

	"github.com/dkarpov/filevault/internal/common"
)

// Validator checks content types against allowed patterns. A pattern is
// either an exact type ("application/pdf") or a wildcard ("image/*").
// Matching is case-insensitive.
type Validator struct {
	patterns []string
}

// NewValidator parses a comma-separated pattern list, e.g.
// "image/*,application/pdf,text/plain". Blank entries are dropped.
func NewValidator(allowedContentTypes string) (*Validator, error) {
	var patterns []string
	for _, p := range strings.Split(allowedContentTypes, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		patterns = append(patterns, strings.ToLower(p))
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no content type patterns configured")
	}
	return &Validator{patterns: patterns}, nil
}

// Validate returns common.ErrUnsupportedContentType when contentType matches
// none of the configured patterns. Blank input is rejected as well; callers
// that want a default must substitute it before calling.
func (v *Validator) Validate(contentType string) error {
	if strings.TrimSpace(contentType) == "" {
		return fmt.Errorf("%w: empty content type", common.ErrUnsupportedContentType)
	}

	ct := strings.ToLower(contentType)
	for _, pattern := range v.patterns {
		if matchesPattern(ct, pattern) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (allowed: %s)",
		common.ErrUnsupportedContentType, contentType, strings.Join(v.patterns, ","))
}

// matchesPattern expects both arguments lowercased.
func matchesPattern(contentType, pattern string) bool {
	if base, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(contentType, base+"/")
	}
	return contentType == pattern
}
