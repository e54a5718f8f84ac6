package sanitize

import (
	"strings"
	"unicode/utf8"
)

// RejectionReason identifies why a message was refused. The string value
// doubles as the client facing detail message and never contains the input.
type RejectionReason string

func (this RejectionReason) Error() string {
	return string(this)
}

const (
	EmptyMessage RejectionReason = "message must not be empty"
	TooLong      RejectionReason = "message must not exceed 500 characters"
)

// MaxMessageLength bounds the normalized message size in characters.
const MaxMessageLength = 500

// Sanitize normalizes free text input before it is echoed back. Leading and
// trailing whitespace is dropped and every internal whitespace run collapses
// to a single space. The transform is deterministic and idempotent.
// @param raw supplies the caller provided message.
// @return the normalized message, or a RejectionReason error when the input
//   is empty after trimming or exceeds MaxMessageLength once normalized.
func Sanitize(raw string) (string, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", EmptyMessage
	}
	normalized := strings.Join(fields, " ")
	if utf8.RuneCountInString(normalized) > MaxMessageLength {
		return "", TooLong
	}
	return normalized, nil
}
