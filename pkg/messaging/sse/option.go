package sse

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Option defines optional properties for configuring an event stream Subscriber.
type Option struct {
	backOff     backoff.BackOff
	client      *http.Client
	ctx         context.Context
	lastEventID string
	maxLineSize int
	onError     []func(error)
	onOpen      []func()
	since       time.Time
	userAgent   string
}

// WithBackOff sets the policy used to space out reconnection attempts.
//
// The default policy is an exponential backoff that never gives up.
func WithBackOff(b backoff.BackOff) func(*Option) {
	return func(o *Option) {
		o.backOff = b
	}
}

// WithContext sets the context.Context for the Subscriber.
func WithContext(ctx context.Context) func(*Option) {
	return func(o *Option) {
		o.ctx = ctx
	}
}

// WithHTTPClient sets the http.Client used to connect to the event stream. The client must not impose an overall
// request timeout, since the response body is read for as long as the subscription lasts.
func WithHTTPClient(client *http.Client) func(*Option) {
	return func(o *Option) {
		o.client = client
	}
}

// WithLastEventID sets the event ID to resume from on the first connection.
func WithLastEventID(id string) func(*Option) {
	return func(o *Option) {
		o.lastEventID = strings.TrimSpace(id)
	}
}

// WithMaxLineSize sets the maximum size in bytes of a single line in the event stream.
func WithMaxLineSize(size int) func(*Option) {
	return func(o *Option) {
		o.maxLineSize = size
	}
}

// WithOnError adds a callback invoked with connection and handler errors. Callbacks run on the consuming
// goroutine in the order they were added.
func WithOnError(fn func(error)) func(*Option) {
	return func(o *Option) {
		if fn != nil {
			o.onError = append(o.onError, fn)
		}
	}
}

// WithOnOpen adds a callback invoked each time a connection to the event stream is established.
func WithOnOpen(fn func()) func(*Option) {
	return func(o *Option) {
		if fn != nil {
			o.onOpen = append(o.onOpen, fn)
		}
	}
}

// WithSince requests historical events starting at t. It only applies until an event ID is known.
func WithSince(t time.Time) func(*Option) {
	return func(o *Option) {
		o.since = t
	}
}

// WithUserAgent sets the User-Agent header sent to the event stream.
//
// The default is DefaultUserAgent.
func WithUserAgent(userAgent string) func(*Option) {
	return func(o *Option) {
		o.userAgent = strings.TrimSpace(userAgent)
	}
}
