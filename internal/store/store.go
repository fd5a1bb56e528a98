package store

import "strings"

// IsUniqueViolation reports whether the error is a SQLite unique-constraint
// failure. modernc.org/sqlite exposes constraint errors only through the
// message text.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
