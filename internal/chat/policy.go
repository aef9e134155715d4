package chat

import (
	"strings"
	"unicode/utf8"
)

// ModerationPolicy reports whether a message body must be reviewed before it is shown.
type ModerationPolicy func(body string) bool

const moderationLengthThreshold = 300

// DefaultModerationPolicy flags bodies longer than 300 characters or containing
// a plain http:// or https:// substring. Matching is case-sensitive.
func DefaultModerationPolicy(body string) bool {
	if utf8.RuneCountInString(body) > moderationLengthThreshold {
		return true
	}
	return strings.Contains(body, "http://") || strings.Contains(body, "https://")
}
