package eventstreams

import (
	"context"
)

// Send delivers value on stream, giving up when ctx is done. It reports whether the value was delivered.
func Send[E any](ctx context.Context, stream chan<- E, value E) bool {
	select {
	case stream <- value:
		return true
	case <-ctx.Done():
		return false
	}
}
