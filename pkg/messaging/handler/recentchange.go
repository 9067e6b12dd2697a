package handler

import (
	"context"
	"slices"
	"strings"

	"github.com/transientvariable/eventstreams/pkg/messaging"
	"github.com/transientvariable/eventstreams/pkg/messaging/sse"
	"github.com/transientvariable/eventstreams/pkg/schema/recentchange"

	"github.com/transientvariable/log-go"
)

var (
	_ messaging.Handler[*sse.Event] = (*listener[*recentchange.EditEvent])(nil)
)

// ListenerOption defines optional properties for typed recent change listeners.
type ListenerOption struct {
	serverName string
}

// WithServerName restricts a listener to changes made on the wiki with the given server name, e.g. en.wikipedia.org.
func WithServerName(serverName string) func(*ListenerOption) {
	return func(o *ListenerOption) {
		o.serverName = strings.TrimSpace(serverName)
	}
}

// listener decodes events of the accepted types and passes them to a callback.
type listener[E interface{ Domain() string }] struct {
	decode     func([]byte) (E, error)
	fn         func(E)
	name       string
	next       messaging.Handler[*sse.Event]
	serverName string
	types      []string
}

// NewEditHandler creates a new messaging.Handler invoking fn for every edit.
func NewEditHandler(fn func(*recentchange.EditEvent), options ...func(*ListenerOption)) (messaging.Handler[*sse.Event], error) {
	return newListener("edit-handler", recentchange.DecodeEdit, fn, []string{recentchange.TypeEdit}, options...)
}

// NewNewPageHandler creates a new messaging.Handler invoking fn for every page creation.
func NewNewPageHandler(fn func(*recentchange.EditEvent), options ...func(*ListenerOption)) (messaging.Handler[*sse.Event], error) {
	return newListener("new-page-handler", recentchange.DecodeEdit, fn, []string{recentchange.TypeNew}, options...)
}

// NewLogEntryHandler creates a new messaging.Handler invoking fn for every log entry.
func NewLogEntryHandler(fn func(*recentchange.LogEvent), options ...func(*ListenerOption)) (messaging.Handler[*sse.Event], error) {
	return newListener("log-entry-handler", recentchange.DecodeLog, fn, []string{recentchange.TypeLog}, options...)
}

func newListener[E interface{ Domain() string }](
	name string,
	decode func([]byte) (E, error),
	fn func(E),
	types []string,
	options ...func(*ListenerOption),
) (messaging.Handler[*sse.Event], error) {
	if fn == nil {
		return nil, &Error{Source: name, Message: ErrListenerRequired.Error()}
	}

	opts := &ListenerOption{}
	for _, opt := range options {
		opt(opts)
	}

	h := &listener[E]{
		decode:     decode,
		fn:         fn,
		name:       name,
		serverName: opts.serverName,
		types:      types,
	}
	if h.serverName != "" {
		h.name = name + ":" + h.serverName
	}
	return h, nil
}

func (h *listener[E]) Name() string {
	return h.name
}

func (h *listener[E]) Next() messaging.Handler[*sse.Event] {
	return h.next
}

// OnMessage invokes the listener callback when the event payload is of an accepted type. Payloads that cannot be
// decoded are logged and skipped; the event is always forwarded.
func (h *listener[E]) OnMessage(ctx context.Context, msg *sse.Event) error {
	if msg != nil {
		h.handle(msg)
	}
	return messaging.Forward[*sse.Event](ctx, h, msg)
}

func (h *listener[E]) SetNext(handler messaging.Handler[*sse.Event]) {
	h.next = handler
}

func (h *listener[E]) handle(msg *sse.Event) {
	t, err := recentchange.PeekType(msg.Data)
	if err != nil {
		log.Debug("["+h.name+"] skipping undecodable payload", log.String("id", msg.ID), log.Int("size", len(msg.Data)))
		return
	}

	if !slices.Contains(h.types, t) {
		return
	}

	e, err := h.decode(msg.Data)
	if err != nil {
		log.Warn("["+h.name+"] skipping invalid change", log.String("id", msg.ID), log.Err(err))
		return
	}

	if h.serverName != "" && e.Domain() != h.serverName {
		return
	}
	h.fn(e)
}
