// Package stream provides a convenient, typed wrapper around the Wikimedia EventStreams live recent changes feed.
//
// Clients add listeners for edit and log entry events:
//
//	s, err := stream.New()
//	if err != nil {
//		return err
//	}
//	s.OnEdit(func(e *recentchange.EditEvent) {
//		fmt.Printf("%s: %s edited %s\n", e.ServerName, e.User, e.Title)
//	})
//	if err := s.Start(); err != nil {
//		return err
//	}
//	defer s.Close()
//
// Filtering on a single wiki uses OnWikiEdit or OnWikiLog with the wiki's server name, e.g. en.wikipedia.org.
package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/transientvariable/eventstreams/pkg/messaging"
	"github.com/transientvariable/eventstreams/pkg/messaging/handler"
	"github.com/transientvariable/eventstreams/pkg/messaging/sse"
	"github.com/transientvariable/eventstreams/pkg/schema/recentchange"

	"github.com/transientvariable/log-go"

	eventstreams "github.com/transientvariable/eventstreams/pkg"
)

const (
	// DefaultURL is the URL of the recent changes stream.
	DefaultURL = "https://stream.wikimedia.org/v2/stream/recentchange"
)

// EventStream is a subscription to a recent changes stream with typed listeners.
//
// Listeners run sequentially on the goroutine consuming the stream, in the order events arrive. Listeners must not
// register further listeners or call Close.
type EventStream struct {
	dedup      bool
	mutex      sync.Mutex
	onError    []func(error)
	onOpen     []func()
	subscriber *sse.Subscriber
}

// New creates a new EventStream. No connection is made until Start is called.
func New(options ...func(*Option)) (*EventStream, error) {
	opts := &Option{url: DefaultURL}
	for _, opt := range options {
		opt(opts)
	}

	s := &EventStream{dedup: opts.dedup}

	subOpts := append([]func(*sse.Option){
		sse.WithOnOpen(s.opened),
		sse.WithOnError(s.failed),
	}, opts.subscriber...)

	sub, err := sse.NewSubscriber(opts.url, subOpts...)
	if err != nil {
		return nil, fmt.Errorf("event_stream: %w", err)
	}
	s.subscriber = sub

	if s.dedup {
		h, err := handler.NewDedupHandler()
		if err != nil {
			return nil, fmt.Errorf("event_stream: %w", err)
		}
		s.subscriber.Add(h)
	}
	s.subscriber.Add(handler.NewLogHandler())
	return s, nil
}

// OnEdit adds a listener for all edits.
func (s *EventStream) OnEdit(fn func(*recentchange.EditEvent)) error {
	return s.use(handler.NewEditHandler(fn))
}

// OnWikiEdit adds a listener for edits on the wiki with the given server name, e.g. www.wikidata.org.
func (s *EventStream) OnWikiEdit(serverName string, fn func(*recentchange.EditEvent)) error {
	if serverName = strings.TrimSpace(serverName); serverName == "" {
		return fmt.Errorf("event_stream: %w: server name is required", eventstreams.ErrInvalid)
	}
	return s.use(handler.NewEditHandler(fn, handler.WithServerName(serverName)))
}

// OnNewPage adds a listener for all page creations.
func (s *EventStream) OnNewPage(fn func(*recentchange.EditEvent)) error {
	return s.use(handler.NewNewPageHandler(fn))
}

// OnLog adds a listener for all log entries.
func (s *EventStream) OnLog(fn func(*recentchange.LogEvent)) error {
	return s.use(handler.NewLogEntryHandler(fn))
}

// OnWikiLog adds a listener for log entries on the wiki with the given server name.
func (s *EventStream) OnWikiLog(serverName string, fn func(*recentchange.LogEvent)) error {
	if serverName = strings.TrimSpace(serverName); serverName == "" {
		return fmt.Errorf("event_stream: %w: server name is required", eventstreams.ErrInvalid)
	}
	return s.use(handler.NewLogEntryHandler(fn, handler.WithServerName(serverName)))
}

// OnOpen adds a callback invoked each time a connection to the stream is established.
func (s *EventStream) OnOpen(fn func()) {
	if fn == nil {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onOpen = append(s.onOpen, fn)
}

// OnError adds a callback invoked with connection and listener errors.
func (s *EventStream) OnError(fn func(error)) {
	if fn == nil {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onError = append(s.onError, fn)
}

// Use appends a raw handler to the chain of handlers events are dispatched to.
func (s *EventStream) Use(h messaging.Handler[*sse.Event]) error {
	if h == nil {
		return fmt.Errorf("event_stream: %w: handler is required", eventstreams.ErrInvalid)
	}
	s.subscriber.Add(h)
	return nil
}

// Edits returns a channel receiving every edit. The channel is closed when ctx is done or the stream stops.
//
// The channel is unbuffered: a slow receiver holds up every listener of the stream. A receiver may stop reading at
// any time; Close does not wait for it.
func (s *EventStream) Edits(ctx context.Context) (<-chan *recentchange.EditEvent, error) {
	return channel(ctx, s, handler.NewEditHandler)
}

// Logs returns a channel receiving every log entry. The channel is closed when ctx is done or the stream stops.
func (s *EventStream) Logs(ctx context.Context) (<-chan *recentchange.LogEvent, error) {
	return channel(ctx, s, handler.NewLogEntryHandler)
}

// Start connects to the stream and begins dispatching events in the background.
func (s *EventStream) Start() error {
	if err := s.subscriber.Subscribe(); err != nil {
		return fmt.Errorf("event_stream: %w", err)
	}
	return nil
}

// Close closes the connection and waits for the listener currently running, if any, to return.
func (s *EventStream) Close() error {
	if s == nil {
		return eventstreams.ErrInvalid
	}

	if err := s.subscriber.Close(); err != nil {
		return fmt.Errorf("event_stream: %w", err)
	}
	return nil
}

// Done returns a channel that is closed once the stream stops.
func (s *EventStream) Done() <-chan struct{} {
	return s.subscriber.Done()
}

// Err returns the reason the stream stopped, or nil if it was closed or is still running.
func (s *EventStream) Err() error {
	return s.subscriber.Err()
}

// Wait blocks until the stream stops or ctx is done.
func (s *EventStream) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastEventID returns the ID of the last event received, which can be passed to WithLastEventID to resume.
func (s *EventStream) LastEventID() string {
	return s.subscriber.LastEventID()
}

// String returns a string representing the current state of the EventStream.
func (s *EventStream) String() string {
	return s.subscriber.String()
}

func (s *EventStream) use(h messaging.Handler[*sse.Event], err error) error {
	if err != nil {
		return fmt.Errorf("event_stream: %w", err)
	}
	return s.Use(h)
}

func (s *EventStream) opened() {
	s.mutex.Lock()
	callbacks := append([]func(){}, s.onOpen...)
	s.mutex.Unlock()

	log.Debug("[event_stream] connected", log.String("url", s.subscriber.URL()))
	for _, fn := range callbacks {
		fn()
	}
}

func (s *EventStream) failed(err error) {
	s.mutex.Lock()
	callbacks := append([]func(error){}, s.onError...)
	s.mutex.Unlock()

	for _, fn := range callbacks {
		fn(err)
	}
}

// channel registers a listener built by newHandler that sends each event on the returned channel. A pending send
// gives up once ctx is done or the stream is closed, so Close never waits on a receiver that stopped reading.
func channel[E any, O any](
	ctx context.Context,
	s *EventStream,
	newHandler func(func(E), ...func(O)) (messaging.Handler[*sse.Event], error),
) (<-chan E, error) {
	out := make(chan E)

	sendCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.subscriber.Context(), cancel)

	var mutex sync.Mutex
	closed := false
	h, err := newHandler(func(e E) {
		mutex.Lock()
		defer mutex.Unlock()
		if !closed {
			eventstreams.Send(sendCtx, out, e)
		}
	})
	if err := s.use(h, err); err != nil {
		stop()
		cancel()
		return nil, err
	}

	go func() {
		select {
		case <-sendCtx.Done():
		case <-s.Done():
		}
		stop()
		cancel()

		mutex.Lock()
		defer mutex.Unlock()
		closed = true
		close(out)
	}()
	return out, nil
}
