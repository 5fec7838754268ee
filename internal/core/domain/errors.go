package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/validation"
)

var (
	ErrInvalidKey     = errors.New("invalid key")
	ErrInvalidSection = errors.New("invalid section")
	ErrInvalidSchema  = errors.New("invalid rule schema")
	ErrNotFound       = errors.New("not found")

	ErrMalformedSettings = errors.New("malformed settings")
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9._:/-]+$`)

// ValidateKey checks tenant ids and other path-safe identifiers.
func ValidateKey(key string) error {
	if key == "" || !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}

// ErrSettingsInvalid is returned when a settings section breaks its rules.
// Errors mirrors the section shape.
type ErrSettingsInvalid struct {
	Section Section
	Errors  validation.ErrorMap
}

func (e *ErrSettingsInvalid) Error() string {
	return fmt.Sprintf("%s settings invalid: %s", e.Section, strings.Join(e.Errors.Messages(), "; "))
}
