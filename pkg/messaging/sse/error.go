package sse

// Enumeration of common errors that may be returned during event stream operations.
const (
	ErrContentType      = sseError("unexpected content type")
	ErrLineTooLong      = sseError("line exceeds maximum size")
	ErrRetriesExhausted = sseError("maximum number of reconnection attempts exceeded")
	ErrUnexpectedStatus = sseError("unexpected response status")
	errStreamNoContent  = sseError("server requested the client to stop reconnecting")
)

// sseError defines the type for errors that may be returned during event stream operations.
type sseError string

// Error returns the cause of the event stream error.
func (e sseError) Error() string {
	return string(e)
}
