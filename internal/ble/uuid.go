package ble

import (
	"strings"

	"github.com/google/uuid"
)

// NormalizeUUID returns s in lower-case dashed 128-bit form. Backends print
// UUIDs with or without dashes and in either case; 16- and 32-bit short
// forms are returned lower-cased as-is.
func NormalizeUUID(s string) string {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return u.String()
}

// SameUUID reports whether a and b name the same UUID.
func SameUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}
