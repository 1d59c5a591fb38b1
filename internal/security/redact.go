package security

import (
	"os"
	"strings"
)

// UserMessage returns err's text for the CLI or dashboard, with local paths
// redacted when redact is set.
func UserMessage(err error, redact bool) string {
	if err == nil {
		return ""
	}
	if redact {
		return RedactMessage(err.Error())
	}
	return err.Error()
}

// RedactMessage strips the home directory and ssh key paths from
// user-visible text. ssh errors often name identity files.
func RedactMessage(msg string) string {
	if msg == "" {
		return msg
	}
	out := msg
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		out = strings.ReplaceAll(out, home, "~")
	}
	if strings.Contains(out, "/.ssh/") {
		out = strings.ReplaceAll(out, "/.ssh/", "/.ssh/[redacted]/")
	}
	return out
}
