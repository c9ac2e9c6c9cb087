package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrCommentNotFound is returned by stores when a comment id does not resolve.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrParentNotFound is returned when a reply's parent is missing or lives in another file.
	ErrParentNotFound = errors.New("parent comment not found")

	// ErrFileNotFound is returned when the file directory does not know the file.
	ErrFileNotFound = errors.New("file not found")

	// ErrUnauthorized is returned when the caller has no identity.
	ErrUnauthorized = errors.New("not authenticated")

	// ErrForbidden is returned by the access checker when the caller lacks permission.
	ErrForbidden = errors.New("insufficient permissions")
)

// ValidationError is a user-correctable input error tied to a request field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets callers test with errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
