package middleware

import (
	"errors"
	"regexp"
	"unicode/utf8"

	"github.com/google/uuid"
)

// phonePattern accepts E.164 numbers: a plus sign and 8 to 15 digits.
var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// ValidatePhone validates a dial target phone number.
func ValidatePhone(phone string) error {
	if phone == "" {
		return errors.New("phone cannot be empty")
	}
	if !phonePattern.MatchString(phone) {
		return errors.New("phone must be in E.164 format")
	}
	return nil
}

// ValidateCallID validates a call ID.
func ValidateCallID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid call ID format")
	}
	return nil
}

// ValidateCampaignID validates a campaign ID.
func ValidateCampaignID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid campaign ID format")
	}
	return nil
}

// ValidateScript validates operator-supplied script text (greeting, voicemail,
// callback offer).
func ValidateScript(text string) error {
	if len(text) > 4096 {
		return errors.New("script exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("script must be valid UTF-8")
	}
	return nil
}
