package command

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input that never reaches a lane.
	ErrValidation = errors.New("command: validation failed")
	// ErrUnknownKind is returned when decoding an envelope of an unknown kind.
	ErrUnknownKind = errors.New("command: unknown kind")
	// ErrUnknownEvent is returned for inbound events outside the vocabulary.
	ErrUnknownEvent = errors.New("command: unknown event")
)

// ValidationError describes which field was rejected.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Path, e.Message)
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(path, msg string) error { return &ValidationError{Path: path, Message: msg} }
