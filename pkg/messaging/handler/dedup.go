package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/transientvariable/eventstreams/pkg/messaging"
	"github.com/transientvariable/eventstreams/pkg/messaging/sse"
	"github.com/transientvariable/eventstreams/pkg/schema/recentchange"

	"github.com/minio/sha256-simd"
	"github.com/transientvariable/hold"
	"github.com/transientvariable/hold/trie"
	"github.com/transientvariable/log-go"
)

const (
	// DefaultDedupCapacity defines the default number of event keys remembered by a dedup handler.
	DefaultDedupCapacity = 100_000
)

var (
	_ messaging.Handler[*sse.Event] = (*dedupHandler)(nil)
)

type dedupHandler struct {
	capacity  int
	mutex     sync.Mutex
	next      messaging.Handler[*sse.Event]
	processed trie.Trie
}

// NewDedupHandler creates a new messaging.Handler that drops events it has already seen.
//
// Events are keyed by meta.id, or by the SHA256 digest of the payload when meta.id is absent. Events replayed by the
// server after a reconnect are dropped rather than delivered twice. Once the number of remembered keys reaches the
// configured capacity, the remembered keys are discarded and tracking starts over.
func NewDedupHandler(options ...func(*dedupHandler)) (messaging.Handler[*sse.Event], error) {
	processed, err := trie.New()
	if err != nil {
		return nil, fmt.Errorf("dedup_handler: %w", err)
	}

	h := &dedupHandler{processed: processed}
	for _, opts := range options {
		opts(h)
	}

	if h.capacity <= 0 {
		h.capacity = DefaultDedupCapacity
	}
	return h, nil
}

func (h *dedupHandler) Name() string {
	return "dedup-handler"
}

func (h *dedupHandler) Next() messaging.Handler[*sse.Event] {
	return h.next
}

func (h *dedupHandler) OnMessage(ctx context.Context, msg *sse.Event) error {
	if msg == nil {
		return nil
	}

	seen, err := h.remember(eventKey(msg))
	if err != nil {
		return err
	}

	if seen {
		log.Debug("[handler:dedup] dropping duplicate event", log.String("id", msg.ID))
		return nil
	}
	return messaging.Forward[*sse.Event](ctx, h, msg)
}

func (h *dedupHandler) SetNext(handler messaging.Handler[*sse.Event]) {
	h.next = handler
}

// remember records key and reports whether it had already been recorded.
func (h *dedupHandler) remember(key string) (bool, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.processed.Len() > 0 {
		if _, err := h.processed.Entry(key); err != nil {
			if !errors.Is(err, hold.ErrNotFound) {
				return false, fmt.Errorf("dedup_handler: %w", err)
			}
		} else {
			return true, nil
		}
	}

	if h.processed.Len() >= h.capacity {
		processed, err := trie.New()
		if err != nil {
			return false, fmt.Errorf("dedup_handler: %w", err)
		}

		log.Debug("[handler:dedup] rotating processed keys", log.Int("capacity", h.capacity))
		h.processed = processed
	}

	if err := h.processed.Add(key); err != nil {
		return false, fmt.Errorf("dedup_handler: processed_add: %w", err)
	}
	return false, nil
}

// eventKey returns the key identifying an event for deduplication.
func eventKey(msg *sse.Event) string {
	if id := recentchange.PeekEventID(msg.Data); id != "" {
		return id
	}
	return fmt.Sprintf("%x", sha256.Sum256(msg.Data))
}

// WithCapacity sets the number of event keys remembered by a dedup handler.
//
// The default capacity is DefaultDedupCapacity.
func WithCapacity(capacity int) func(*dedupHandler) {
	return func(h *dedupHandler) {
		h.capacity = capacity
	}
}
