// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"regexp"
	"strings"
)

const (
	MaxUsernameLen = 36

	// DefaultDisplayName is used until the user picks a name of their own.
	DefaultDisplayName = "Unfriendly Sphere"
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameDefault = errors.New("username is the default placeholder")
)

// placeholderName matches generated placeholder names; those are never persisted.
var placeholderName = regexp.MustCompile(`(?i)sphere`)

// IsPlaceholderName reports whether name is (a variant of) the default placeholder.
func IsPlaceholderName(name string) bool {
	return placeholderName.MatchString(name)
}

// ValidateDisplayName checks a user supplied display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	if IsPlaceholderName(name) {
		return ErrUsernameDefault
	}
	return nil
}
