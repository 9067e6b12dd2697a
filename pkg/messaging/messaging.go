package messaging

import "context"

// Handler defines the behavior for a link in a chain of message handlers.
//
// A Handler forwards a message to Next unless it deliberately drops it.
type Handler[T any] interface {
	Name() string
	Next() Handler[T]
	OnMessage(ctx context.Context, msg T) error
	SetNext(handler Handler[T])
}

type Publisher[T any] interface {
	Publish(msg T) error
	Close() error
}

type Subscriber[T any] interface {
	Subscribe(handlers ...Handler[T]) error
	Add(handler Handler[T]) bool
	Close() error
}

// Forward passes msg to the handler following h, if any.
func Forward[T any](ctx context.Context, h Handler[T], msg T) error {
	if next := h.Next(); next != nil {
		return next.OnMessage(ctx, msg)
	}
	return nil
}

// Names returns the names of the handlers in the chain starting at head.
func Names[T any](head Handler[T]) []string {
	var names []string
	for h := head; h != nil; h = h.Next() {
		names = append(names, h.Name())
	}
	return names
}
