// Package phone normalizes lead phone numbers for matching and messaging.
package phone

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when the caller passes no region.
const DefaultRegion = "US"

// ValidationResult contains the result of phone number validation.
type ValidationResult struct {
	IsValid             bool   `json:"is_valid"`
	E164Format          string `json:"e164_format"`
	InternationalFormat string `json:"international_format"`
	NationalFormat      string `json:"national_format"`
	CountryCode         string `json:"country_code"`
}

// Validate parses phone with region as the default country.
func Validate(phone, region string) (*ValidationResult, error) {
	parsed, err := parse(phone, region)
	if err != nil {
		return nil, err
	}

	return &ValidationResult{
		IsValid:             phonenumbers.IsValidNumber(parsed),
		E164Format:          phonenumbers.Format(parsed, phonenumbers.E164),
		InternationalFormat: phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL),
		NationalFormat:      phonenumbers.Format(parsed, phonenumbers.NATIONAL),
		CountryCode:         phonenumbers.GetRegionCodeForNumber(parsed),
	}, nil
}

// Normalize returns the E.164 form of a valid number.
func Normalize(phone, region string) (string, error) {
	parsed, err := parse(phone, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number: %s", phone)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// MatchKey is the key under which two phone numbers are considered equal.
// Parseable numbers collapse to E.164, so "(555) 010-0199" and "+1 555 010 0199"
// share a key. Anything else falls back to its digits. Empty input yields "".
func MatchKey(phone, region string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	if parsed, err := parse(phone, region); err == nil && phonenumbers.IsPossibleNumber(parsed) {
		return phonenumbers.Format(parsed, phonenumbers.E164)
	}
	return Digits(phone)
}

// WhatsAppID is the recipient id expected by the WhatsApp Cloud API:
// the E.164 number without the leading plus.
func WhatsAppID(phone, region string) (string, error) {
	e164, err := Normalize(phone, region)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(e164, "+"), nil
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parse(phone, region string) (*phonenumbers.PhoneNumber, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("phone number cannot be empty")
	}
	if region == "" {
		region = DefaultRegion
	}

	parsed, err := phonenumbers.Parse(phone, strings.ToUpper(region))
	if err != nil {
		return nil, fmt.Errorf("failed to parse phone number: %w", err)
	}
	return parsed, nil
}
