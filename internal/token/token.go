// Package token validates and persists the session token that identifies a
// user's live-update channel.
//
// A token is accepted only when it is exactly [Length] ASCII letters or
// digits. [Valid] is cheap enough to run on every keystroke; [Validate]
// returns an error wrapping [ErrInvalid] for callers that need one.
package token

import (
	"errors"
	"fmt"
)

// Length is the exact number of characters in a session token.
const Length = 16

// ErrInvalid is returned when a candidate token is not syntactically valid.
var ErrInvalid = errors.New("invalid session token")

// Valid reports whether candidate has exactly [Length] characters, all drawn
// from [A-Za-z0-9].
func Valid(candidate string) bool {
	if len(candidate) != Length {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		if !isAlnum(candidate[i]) {
			return false
		}
	}
	return true
}

// Validate returns nil for a valid token and an error wrapping [ErrInvalid]
// otherwise. The token itself is never included in the message.
func Validate(candidate string) error {
	if Valid(candidate) {
		return nil
	}
	if len(candidate) != Length {
		return fmt.Errorf("%w: want %d characters, got %d", ErrInvalid, Length, len(candidate))
	}
	return fmt.Errorf("%w: only letters and digits are allowed", ErrInvalid)
}

// isAlnum reports whether b is an ASCII letter or digit.
func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// Redact returns a display-safe form of tok for logs: the first four
// characters followed by asterisks.
func Redact(tok string) string {
	if len(tok) <= 4 {
		return "****"
	}
	return tok[:4] + "************"
}
