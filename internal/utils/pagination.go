// Package utils provides small helpers shared across layers. Nothing in
// here knows about the monitor or the database.
package utils

import "strconv"

// AtoiDefault parses query parameters like page, page_size, and limit.
// Empty or malformed input yields the default instead of an error so
// handlers can clamp the result rather than reject the request.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
