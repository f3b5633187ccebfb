// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the minimum number of characters in a password.
const MinPasswordLength = 8

// MaxNameLength bounds first and last names.
const MaxNameLength = 50

// Local part, then dot-separated domain labels (no leading/trailing
// hyphen), then an alphabetic TLD of at least two letters.
var emailPattern = regexp.MustCompile(
	`^[A-Za-z0-9._%+\-]+@` +
		`(?:[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?\.)+` +
		`[A-Za-z]{2,}$`,
)

// IsValidEmail reports whether s has the shape local@domain.tld.
// Purely syntactic; no DNS lookups.
func IsValidEmail(s string) bool {
	return len(s) <= 254 && emailPattern.MatchString(s)
}

// NormalizeEmail trims and lowercases an email for storage and lookup.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsStrongPassword reports whether s has at least MinPasswordLength
// characters including an uppercase ASCII letter, a lowercase ASCII
// letter, and a digit.
func IsStrongPassword(s string) bool {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return false
	}
	var upper, lower, digit bool
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= '0' && c <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}

// IsValidName reports whether a trimmed name fits MaxNameLength.
func IsValidName(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) <= MaxNameLength
}
