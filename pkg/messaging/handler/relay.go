package handler

import (
	"context"
	"errors"

	"github.com/transientvariable/eventstreams/pkg/messaging"
	"github.com/transientvariable/eventstreams/pkg/messaging/sse"
	"github.com/transientvariable/eventstreams/pkg/schema/recentchange"

	"github.com/transientvariable/log-go"
)

var (
	_ messaging.Handler[*sse.Event] = (*relayHandler)(nil)
)

type relayHandler struct {
	next      messaging.Handler[*sse.Event]
	publisher messaging.Publisher[[]byte]
}

// NewRelayHandler creates a new messaging.Handler that publishes the payload of every event to publisher.
//
// Payloads that are not valid JSON objects are not published. Every event is forwarded, whether or not publishing
// succeeds.
func NewRelayHandler(publisher messaging.Publisher[[]byte]) (messaging.Handler[*sse.Event], error) {
	if publisher == nil {
		return nil, &Error{Source: "relay_handler", Message: ErrPublisherRequired.Error()}
	}
	return &relayHandler{publisher: publisher}, nil
}

func (h *relayHandler) Name() string {
	return "relay-handler"
}

func (h *relayHandler) Next() messaging.Handler[*sse.Event] {
	return h.next
}

func (h *relayHandler) OnMessage(ctx context.Context, msg *sse.Event) error {
	if msg == nil {
		return messaging.Forward[*sse.Event](ctx, h, msg)
	}

	if _, ok := recentchange.ParseLine(msg.Data); !ok {
		log.Debug("[handler:relay] skipping undecodable payload", log.String("id", msg.ID))
		return messaging.Forward[*sse.Event](ctx, h, msg)
	}

	if err := h.publisher.Publish(msg.Data); err != nil {
		return errors.Join(
			&Error{Source: "relay_handler", Operation: "publish", Err: err},
			messaging.Forward[*sse.Event](ctx, h, msg))
	}
	return messaging.Forward[*sse.Event](ctx, h, msg)
}

func (h *relayHandler) SetNext(handler messaging.Handler[*sse.Event]) {
	h.next = handler
}
