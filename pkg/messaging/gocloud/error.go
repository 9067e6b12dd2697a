package gocloud

// Enumeration of common errors that may be returned during gocloud pub/sub operations.
const (
	ErrTopicURLRequired = gocloudError("topic URL is required")
)

// gocloudError defines the type for errors that may be returned during gocloud pub/sub operations.
type gocloudError string

// Error returns the cause of the gocloud pub/sub error.
func (e gocloudError) Error() string {
	return string(e)
}
