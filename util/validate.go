package util

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// IsValidUUID reports whether s is a strict UUID v1-v5 string.
func IsValidUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

// ErrInvalidPath is returned by ValidatePath for null bytes or traversal.
var ErrInvalidPath = fmt.Errorf("invalid path")

// ValidatePath rejects null bytes, resolves the path to an absolute, cleaned
// form, and rejects any path whose cleaned form escapes the optional
// allow-list of base directories (traversal).
func ValidatePath(path string, allowedBases []string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: null byte in path", ErrInvalidPath)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	clean := filepath.Clean(abs)

	if len(allowedBases) == 0 {
		return clean, nil
	}

	for _, base := range allowedBases {
		absBase, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		absBase = filepath.Clean(absBase)
		rel, err := filepath.Rel(absBase, clean)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)) {
			return clean, nil
		}
	}
	return "", fmt.Errorf("%w: path escapes allowed base directories", ErrInvalidPath)
}
