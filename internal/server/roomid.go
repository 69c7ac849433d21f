// Package server validates room identifiers with the single rule shared by
// the room page route and the live join event.
package server

import (
	"errors"
	"unicode/utf8"
)

// MaxRoomIDLength is the maximum number of characters in a room identifier.
const MaxRoomIDLength = 20

var (
	// ErrRoomIDTooLong is returned when the identifier exceeds MaxRoomIDLength.
	ErrRoomIDTooLong = errors.New("room name is too long (maximum 20 characters)")
	// ErrRoomIDInvalidChars is returned when the identifier contains a
	// character outside letters, digits and - _ @ # $.
	ErrRoomIDInvalidChars = errors.New("room name contains invalid characters")
)

// ValidateRoomID checks a candidate room identifier against the length and
// character-set rules and returns the violated rule's error, if any.
func ValidateRoomID(roomID string) error {
	if utf8.RuneCountInString(roomID) > MaxRoomIDLength {
		return ErrRoomIDTooLong
	}
	for _, r := range roomID {
		if !isRoomIDChar(r) {
			return ErrRoomIDInvalidChars
		}
	}
	return nil
}

func isRoomIDChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case '-', '_', '@', '#', '$':
		return true
	}
	return false
}
