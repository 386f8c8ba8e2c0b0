package model

import (
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidIdentifier reports whether name is usable as a table or column name
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func validateIdentifier(field, name string) error {
	if !ValidIdentifier(name) {
		return &ValidationError{Field: field, Message: "must match [A-Za-z0-9_]+, got " + strconv.Quote(name)}
	}
	return nil
}

func validateActingUser(actingUserID string) error {
	if _, err := uuid.Parse(actingUserID); err != nil {
		return &ValidationError{Field: "acting user", Message: "must be a uuid string"}
	}
	return nil
}

func validateID(field string, id int64) error {
	if id <= 0 {
		return &ValidationError{Field: field, Message: "must be a positive identifier"}
	}
	return nil
}

func validateKeys(field string, m map[string]any) error {
	for k := range m {
		if err := validateIdentifier(field, k); err != nil {
			return err
		}
	}
	return nil
}
