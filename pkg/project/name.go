// Package project defines project identity for deployed service units.
package project

import (
	"errors"
	"fmt"
)

// ErrInvalidName is returned when a project name fails validation.
var ErrInvalidName = errors.New(`invalid project name. Project names must:
    1. only contain lowercase alphanumeric characters or dashes "-".
    2. not start or end with a dash.
    3. not be empty.
    4. be shorter than 64 characters.
    5. not be a reserved word`)

// reserved words cannot be used as project names because they collide with
// platform-assigned hostnames and environments.
var reserved = map[string]struct{}{
	"shuttle":    {},
	"shuttleapp": {},
	"console":    {},
	"unstable":   {},
	"staging":    {},
}

// Name is a validated project name.
//
// Project names become host labels, so they must conform to a strict subset
// of RFC 1123: lowercase alphanumerics and dashes, no leading or trailing
// dash, shorter than 64 characters. Host labels are technically
// case-insensitive but the filesystem underneath is not, hence lowercase
// only.
type Name string

// NewName validates s and returns it as a Name.
func NewName(s string) (Name, error) {
	if !ValidName(s) {
		return "", fmt.Errorf("%q: %w", s, ErrInvalidName)
	}
	return Name(s), nil
}

// ValidName reports whether s is a valid project name.
func ValidName(s string) bool {
	if s == "" || len(s) >= 64 {
		return false
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	if _, ok := reserved[s]; ok {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}

func (n Name) String() string { return string(n) }
