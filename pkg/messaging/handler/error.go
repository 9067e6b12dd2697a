package handler

import "fmt"

// handlerError defines the type for errors that may be returned during handler operations.
type handlerError string

// Error returns the cause of the handler error.
func (e handlerError) Error() string {
	return string(e)
}

// Enumeration of common errors that may be returned during handler operations.
const (
	ErrListenerRequired  = handlerError("listener is required")
	ErrPublisherRequired = handlerError("publisher is required")
)

// Error defines the type for errors that may be returned during handler operations.
type Error struct {
	Source    string
	Operation string
	Message   string
	Err       error
}

// Error returns the cause of the handler Error.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
		} else {
			msg = e.Err.Error()
		}
	}

	if e.Operation != "" {
		return fmt.Sprintf("%s_%s: %s", e.Source, e.Operation, msg)
	}
	return fmt.Sprintf("%s: %s", e.Source, msg)
}

// Unwrap returns the underlying cause of the handler Error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}
