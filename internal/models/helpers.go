// Package models defines data structures shared across ytchat packages.
package models

import "strings"

// CollapseWhitespace replaces every run of whitespace with a single space
// and trims the result.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
