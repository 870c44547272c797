package utils

import "strings"

// NormalizeTypology lowercases and trims a land-use label so that typology
// rules match regardless of how the source file spelled it.
func NormalizeTypology(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
