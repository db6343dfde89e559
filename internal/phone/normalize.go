// Package phone turns free-form phone number text into canonical dialable
// identifiers.
//
// Numbers in the national scheme (03XXXXXXXXX, 3XXXXXXXXX, 923XXXXXXXXX and
// their +/00 variants) are rewritten to +923XXXXXXXXX and tagged with the
// operator owning their 3-digit mobile prefix. Everything else that looks like
// a dialable number is accepted by a generic international rule and tagged
// "International".
package phone

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MinDigits and MaxDigits bound the digit count of an acceptable number (E.164 allows 15).
	MinDigits = 7
	MaxDigits = 15
)

var (
	// ErrFormat is returned for input that is not a dialable number.
	ErrFormat = errors.New("invalid phone number format")

	// ErrUnknownCarrier is returned for national-scheme numbers whose prefix is not assigned.
	ErrUnknownCarrier = errors.New("unknown carrier prefix")
)

// Number is a successfully normalized phone number.
type Number struct {
	Canonical string `json:"canonical"`
	Carrier   string `json:"carrier"`
	Region    string `json:"region,omitempty"`
}

// IsNational reports whether the number was matched by the national scheme.
func (n Number) IsNational() bool { return n.Region == Region }

// Normalize parses raw into a canonical number. The returned error always
// wraps ErrFormat or ErrUnknownCarrier.
func Normalize(raw string) (Number, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Number{}, fmt.Errorf("%w: empty input", ErrFormat)
	}

	hasPlus := strings.HasPrefix(trimmed, "+")
	digits := stripNonDigits(trimmed)

	if len(digits) < MinDigits || len(digits) > MaxDigits {
		return Number{}, fmt.Errorf("%w: %d digits, want %d-%d", ErrFormat, len(digits), MinDigits, MaxDigits)
	}

	if subscriber, ok := nationalSubscriber(digits, hasPlus); ok {
		prefix := subscriber[:3]
		carrier, known := Carrier(prefix)
		if !known {
			return Number{}, fmt.Errorf("%w: %s", ErrUnknownCarrier, prefix)
		}
		return Number{
			Canonical: "+" + CountryCode + subscriber,
			Carrier:   carrier,
			Region:    Region,
		}, nil
	}

	return international(digits, hasPlus)
}

// nationalSubscriber returns the 10-digit subscriber part (starting with the
// mobile prefix) if digits match one of the national shapes.
func nationalSubscriber(digits string, hasPlus bool) (string, bool) {
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, CountryCode+"3"):
		return digits[2:], true
	case hasPlus:
		return "", false
	case len(digits) == 14 && strings.HasPrefix(digits, "00"+CountryCode+"3"):
		return digits[4:], true
	case len(digits) == 11 && strings.HasPrefix(digits, "03"):
		return digits[1:], true
	case len(digits) == 10 && strings.HasPrefix(digits, "3"):
		return digits, true
	}
	return "", false
}

func international(digits string, hasPlus bool) (Number, error) {
	var canonical string
	switch {
	case hasPlus:
		canonical = "+" + digits
	case strings.HasPrefix(digits, "00"):
		rest := digits[2:]
		if len(rest) < MinDigits {
			return Number{}, fmt.Errorf("%w: %d digits after 00, want at least %d", ErrFormat, len(rest), MinDigits)
		}
		canonical = "+" + rest
	case strings.HasPrefix(digits, "0"):
		return Number{}, fmt.Errorf("%w: trunk prefix 0 outside the national scheme", ErrFormat)
	default:
		canonical = "+" + digits
	}

	if canonical[1] == '0' {
		return Number{}, fmt.Errorf("%w: country code cannot start with 0", ErrFormat)
	}

	return Number{Canonical: canonical, Carrier: International}, nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
