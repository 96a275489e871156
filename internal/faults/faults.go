// Package faults defines the failure classes surfaced to the user interface.
// Errors are tagged with one of the exported markers so callers can classify
// them with errors.Is while keeping the full context in the message.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrFileNotFound      = errors.New("file not found")
	ErrResourceBusy      = errors.New("resource busy")
	ErrIOFailure         = errors.New("i/o failure")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrRecordingActive   = errors.New("recording in progress")
)

// Wrap builds an error that carries the marker, the component and operation
// names, a message, and the underlying cause when there is one.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrIOFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsBenign reports whether err only signals a no-op transition.
func IsBenign(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// Kind returns the marker name for err, or "error" when it carries none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "PermissionDenied"
	case errors.Is(err, ErrFileNotFound):
		return "FileNotFound"
	case errors.Is(err, ErrResourceBusy):
		return "ResourceBusy"
	case errors.Is(err, ErrRecordingActive):
		return "RecordingActive"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrIOFailure):
		return "IOFailure"
	default:
		return "error"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "dictaphone failure"
	}
	return strings.Join(parts, ": ")
}
