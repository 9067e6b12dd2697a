package eventstreams

// Enumeration of common errors that may be returned during event stream operations.
const (
	ErrClosed  = eventStreamsError("already closed")
	ErrInvalid = eventStreamsError("invalid argument")
)

// eventStreamsError defines the type for errors that may be returned during event stream operations.
type eventStreamsError string

// Error returns the cause of the event stream error.
func (e eventStreamsError) Error() string {
	return string(e)
}
