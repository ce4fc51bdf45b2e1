// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset query values. A missing or non-positive
// limit becomes def, a limit above max is capped, a negative or unparsable
// offset becomes 0.
func ParsePage(limitStr, offsetStr string, def, max int) Page {
	limit := AtoiDefault(limitStr, def)
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	offset := AtoiDefault(offsetStr, 0)
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
