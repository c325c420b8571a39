package domain

import (
	"strings"

	"github.com/pion/randutil"
)

const (
	roomCodeLength = 6
	// Ambiguous characters (0/O, 1/I) removed so codes survive being
	// read over the phone.
	roomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewRoomCode generates a short shareable room code, e.g. "AB12CD".
func NewRoomCode() string {
	code, err := randutil.GenerateCryptoRandomString(roomCodeLength, roomCodeChars)
	if err != nil {
		panic(err)
	}
	return code
}

// ValidRoomCode reports whether s is a plausible room code: six
// alphanumeric characters after normalization. Validation is looser
// than generation on purpose; the restricted alphabet only governs
// codes we mint, while hand-typed codes from other issuers may carry
// any letter or digit.
func ValidRoomCode(s string) bool {
	s = NormalizeRoomCode(s)
	if len(s) != roomCodeLength {
		return false
	}
	for _, c := range s {
		letter := c >= 'A' && c <= 'Z'
		digit := c >= '0' && c <= '9'
		if !letter && !digit {
			return false
		}
	}
	return true
}

// NormalizeRoomCode uppercases and trims a user-typed room code.
func NormalizeRoomCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
