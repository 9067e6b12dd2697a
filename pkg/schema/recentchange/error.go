package recentchange

// Enumeration of common errors that may be returned when decoding recent changes.
const (
	ErrDataFormatInvalid = recentChangeError("data format invalid")
	ErrTypeMismatch      = recentChangeError("event type mismatch")
)

// recentChangeError defines the type for errors that may be returned when decoding recent changes.
type recentChangeError string

// Error returns the cause of the recent change error.
func (e recentChangeError) Error() string {
	return string(e)
}
