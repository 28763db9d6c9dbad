package models

import (
	"errors"
	"fmt"
	"strings"
)

// Event validation errors.
var (
	ErrMissingEventID = errors.New("event id is required")
	ErrMissingRoomID  = errors.New("room id is required")
	ErrMissingType    = errors.New("event type is required")
	ErrBadSendStatus  = errors.New("unknown send status")
)

// ValidationError is a single field failure.
type ValidationError struct {
	Field string
	Cause error
}

func (v ValidationError) Error() string {
	if v.Field == "" {
		return v.Cause.Error()
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Cause)
}

// ValidationErrors aggregates field failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(v))
	for _, err := range v {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}

// Is lets errors.Is match any contained cause.
func (v ValidationErrors) Is(target error) bool {
	for _, err := range v {
		if errors.Is(err.Cause, target) {
			return true
		}
	}
	return false
}

// Validate checks the fields required to place an event on a timeline.
func (e Event) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(e.ID.String()) == "" {
		errs = append(errs, ValidationError{Field: "event_id", Cause: ErrMissingEventID})
	}
	if strings.TrimSpace(e.RoomID.String()) == "" {
		errs = append(errs, ValidationError{Field: "room_id", Cause: ErrMissingRoomID})
	}
	if strings.TrimSpace(e.Type.Type) == "" {
		errs = append(errs, ValidationError{Field: "type", Cause: ErrMissingType})
	}
	switch e.SendStatus {
	case "", SendStatusSent, SendStatusSending, SendStatusNotSent:
	default:
		errs = append(errs, ValidationError{Field: "send_status", Cause: ErrBadSendStatus})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
