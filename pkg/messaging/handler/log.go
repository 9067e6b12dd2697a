package handler

import (
	"context"

	"github.com/transientvariable/eventstreams/pkg/messaging"
	"github.com/transientvariable/eventstreams/pkg/messaging/sse"

	"github.com/transientvariable/log-go"
)

var (
	_ messaging.Handler[*sse.Event] = (*logHandler)(nil)
)

type logHandler struct {
	next messaging.Handler[*sse.Event]
}

// NewLogHandler creates a new messaging.Handler that logs every event it receives.
func NewLogHandler() messaging.Handler[*sse.Event] {
	return &logHandler{}
}

func (h *logHandler) Name() string {
	return "log-handler"
}

func (h *logHandler) Next() messaging.Handler[*sse.Event] {
	return h.next
}

func (h *logHandler) OnMessage(ctx context.Context, msg *sse.Event) error {
	if msg != nil {
		log.Debug("[handler:log] event received",
			log.String("id", msg.ID),
			log.String("type", msg.Type),
			log.Int("size", len(msg.Data)))
	}
	return messaging.Forward[*sse.Event](ctx, h, msg)
}

func (h *logHandler) SetNext(handler messaging.Handler[*sse.Event]) {
	h.next = handler
}
