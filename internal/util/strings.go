package util

import "strings"

// EmptyDash returns "-" for blank strings, for table output.
func EmptyDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
