package stream

import (
	"strings"

	"github.com/transientvariable/eventstreams/pkg/messaging/sse"
)

// Option defines optional properties for configuring an EventStream.
type Option struct {
	dedup      bool
	subscriber []func(*sse.Option)
	url        string
}

// WithURL sets the URL of the event stream. The default is DefaultURL.
func WithURL(url string) func(*Option) {
	return func(o *Option) {
		if url = strings.TrimSpace(url); url != "" {
			o.url = url
		}
	}
}

// WithDedup drops events already delivered, e.g. events replayed after reconnecting.
func WithDedup(dedup bool) func(*Option) {
	return func(o *Option) {
		o.dedup = dedup
	}
}

// WithSubscriberOptions passes options through to the underlying sse.Subscriber.
func WithSubscriberOptions(options ...func(*sse.Option)) func(*Option) {
	return func(o *Option) {
		o.subscriber = append(o.subscriber, options...)
	}
}
