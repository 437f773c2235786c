// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "MX"

// NormalizeE164 formats a phone number to E.164. The normalized form is the
// stable identity key for a lead, so the same contact reached via different
// sources collapses onto one record; an unparseable input is an error, never
// a fallback value.
func NormalizeE164(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("empty phone number")
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("parse phone number: %w", err)
	}

	if !phonenumbers.IsValidNumber(number) {
		return "", fmt.Errorf("invalid phone number")
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}

// IsNormalized reports whether input is already a valid E.164 number.
func IsNormalized(input string) bool {
	if !strings.HasPrefix(input, "+") {
		return false
	}
	number, err := phonenumbers.Parse(input, "")
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(number) && phonenumbers.Format(number, phonenumbers.E164) == input
}
