package valueobject

import (
	"regexp"

	"whatsam/internal/domain/errors"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// ValidateSessionID checks the opaque session identifier: 3-50 characters
// of [A-Za-z0-9_-].
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return errors.ErrInvalidSessionID
	}
	return nil
}
