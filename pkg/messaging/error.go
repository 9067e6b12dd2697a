package messaging

// Enumeration of common errors that may be returned during messaging operations.
const (
	ErrPublisherClosed  = messagingError("publisher is closed")
	ErrSubscriberClosed = messagingError("subscriber is closed")
	ErrSubscribed       = messagingError("subscriber is already consuming")
)

// messagingError defines the type for errors that may be returned during messaging operations.
type messagingError string

// Error returns the cause of the messaging error.
func (e messagingError) Error() string {
	return string(e)
}
