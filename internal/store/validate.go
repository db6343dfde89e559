// Package store holds validation shared by the credential stores.
package store

import (
	"errors"
	"fmt"
	"strings"
)

// MaxUserIDLength is the maximum allowed length for user identifier strings.
const MaxUserIDLength = 255

// ErrEmptyUserID is returned when a store is asked for a blank user id.
var ErrEmptyUserID = errors.New("user identifier is empty")

// ValidateUserID checks that a user identifier is non-blank and does not
// exceed MaxUserIDLength.
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyUserID
	}
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("user identifier too long: %d chars (max %d)", len(id), MaxUserIDLength)
	}
	return nil
}
