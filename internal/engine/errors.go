package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/match"
)

// RuntimeError represents an error detected while handling an event.
//
// Runtime errors include:
//   - Lookup failure: a name in the history store does not resolve (fatal)
//   - Invalid event: the event targets a cell outside the notebook
//   - Parse failure: a cell could not be parsed and was degraded
//   - Stale response: a parse result arrived after a newer request
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Event is the event type being handled.
	Event EventType

	// Cell identifies the targeted cell, if any.
	Cell string

	// Details contains additional context.
	Details map[string]string

	err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeLookupFailure indicates a history lookup did not resolve.
	ErrCodeLookupFailure RuntimeErrorCode = "LOOKUP_FAILURE"

	// ErrCodeInvalidEvent indicates the event does not apply to the notebook.
	ErrCodeInvalidEvent RuntimeErrorCode = "INVALID_EVENT"

	// ErrCodeParseFailure indicates the parser rejected a cell.
	ErrCodeParseFailure RuntimeErrorCode = "PARSE_FAILURE"

	// ErrCodeStaleResponse indicates a superseded parse response.
	ErrCodeStaleResponse RuntimeErrorCode = "STALE_RESPONSE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Cell != "" {
		return fmt.Sprintf("%s: %s (event=%s, cell=%s)", e.Code, e.Message, e.Event, e.Cell)
	}
	if e.Event != 0 {
		return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Message, e.Event)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.err
}

// IsLookupFailure reports whether err is a fatal lookup failure.
// Uses errors.As to handle wrapped errors.
func IsLookupFailure(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeLookupFailure
	}
	return history.IsLookupError(err)
}

// IsInvalidEvent reports whether err rejected an event.
func IsInvalidEvent(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeInvalidEvent
}

// IsStaleResponse reports whether err discarded a superseded parse.
func IsStaleResponse(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStaleResponse
	}
	return errors.Is(err, match.ErrStaleResponse)
}

func invalidEvent(ev EventType, cell string, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidEvent,
		Message: fmt.Sprintf(format, args...),
		Event:   ev,
		Cell:    cell,
	}
}

// classify wraps err in a RuntimeError when it carries a known cause.
func classify(ev EventType, err error) error {
	if err == nil {
		return nil
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	var le *history.LookupError
	if errors.As(err, &le) {
		return &RuntimeError{
			Code:    ErrCodeLookupFailure,
			Message: le.Error(),
			Event:   ev,
			Details: map[string]string{"name": le.Name},
			err:     err,
		}
	}
	if errors.Is(err, match.ErrStaleResponse) {
		return &RuntimeError{Code: ErrCodeStaleResponse, Message: err.Error(), Event: ev, err: err}
	}
	return err
}
