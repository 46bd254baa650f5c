package schema

import (
	"strings"
	"unicode"
)

// MaxProjectNameLen bounds project names.
const MaxProjectNameLen = 100

// NormalizeProjectName validates and trims a project name. Names must be
// non-empty after trimming, printable, and at most MaxProjectNameLen runes.
func NormalizeProjectName(name string) (ProjectName, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrInvalidProjectName
	}
	count := 0
	for _, r := range trimmed {
		count++
		if r == ' ' {
			continue
		}
		if !unicode.IsPrint(r) {
			return "", ErrInvalidProjectName
		}
	}
	if count > MaxProjectNameLen {
		return "", ErrInvalidProjectName
	}
	return ProjectName(trimmed), nil
}

// ValidateUserID ensures a user id matches [a-z0-9._-] with no normalization.
func ValidateUserID(userID UserID) error {
	raw := string(userID)
	if raw == "" {
		return ErrInvalidUser
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidUser
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidUser
	}
	return nil
}
