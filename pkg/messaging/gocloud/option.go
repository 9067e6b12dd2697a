package gocloud

import (
	"context"
)

// Option defines optional properties for configuring gocloud pub/sub services.
type Option struct {
	ctx        context.Context
	maxRetries int
}

// WithContext sets the context.Context for gocloud pub/sub services.
func WithContext(ctx context.Context) func(*Option) {
	return func(o *Option) {
		o.ctx = ctx
	}
}

// WithMaxRetries sets the number of times publishing a message is retried.
//
// The default is DefaultPublishMaxRetries.
func WithMaxRetries(n int) func(*Option) {
	return func(o *Option) {
		o.maxRetries = n
	}
}
