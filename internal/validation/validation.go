package validation

import (
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxEmailLength is the RFC 5321 upper bound for a mailbox.
	MaxEmailLength = 320

	// MaxNameLength bounds free-text names (companies, projects, rooms, people).
	MaxNameLength = 200

	// MaxDescriptionLength bounds free-text descriptions.
	MaxDescriptionLength = 5000

	// DateLayout is the wire format for calendar dates.
	DateLayout = "2006-01-02"
)

var (
	// ErrInvalidEmail is returned when an address does not parse as a bare mailbox
	ErrInvalidEmail = errors.New("Invalid email address")

	// ErrNameTooShort is returned when a name has fewer than the required characters
	ErrNameTooShort = errors.New("name is too short")

	// ErrNameTooLong is returned when a name exceeds MaxNameLength
	ErrNameTooLong = errors.New("name is too long")

	// ErrInvalidDate is returned when a date is not in YYYY-MM-DD form
	ErrInvalidDate = errors.New("date must be in YYYY-MM-DD format")
)

// NormalizeEmail trims whitespace and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address (no display name) of at
// most MaxEmailLength characters. The input is expected to be normalized.
func ValidateEmail(email string) error {
	if email == "" || len(email) > MaxEmailLength {
		return ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ErrInvalidEmail
	}

	return nil
}

// ValidateName checks a trimmed name has between minLen and MaxNameLength runes.
func ValidateName(name string, minLen int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < minLen {
		return ErrNameTooShort
	}
	if n > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// ParseDate parses an optional YYYY-MM-DD date. Empty input yields nil.
func ParseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return nil, ErrInvalidDate
	}
	return &t, nil
}

// OptionalString trims s and returns nil when the result is empty.
func OptionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
