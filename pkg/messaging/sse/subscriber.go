package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/transientvariable/eventstreams/pkg/messaging"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/transientvariable/anchor"
	"github.com/transientvariable/log-go"

	eventstreams "github.com/transientvariable/eventstreams/pkg"
)

const (
	// DefaultUserAgent defines the default User-Agent header sent to the event stream.
	DefaultUserAgent = "eventstreams-go/0.1 (+https://github.com/transientvariable/eventstreams)"

	// SinceParam is the query parameter used to request historical events.
	SinceParam = "since"

	contentTypeEventStream = "text/event-stream"
	reconnectInitial       = time.Second
	reconnectMax           = 30 * time.Second
)

var (
	_ messaging.Subscriber[*Event] = (*Subscriber)(nil)
)

// Subscriber is an implementation of a messaging.Subscriber consuming a server-sent events stream over HTTP.
//
// Events are dispatched one at a time, in stream order, to the head of the handler chain. Dropped connections are
// re-established using the configured backoff policy, resuming from the last event ID.
type Subscriber struct {
	backOff     backoff.BackOff
	chain       sync.RWMutex
	client      *http.Client
	closed      bool
	ctx         context.Context
	ctxCancel   context.CancelFunc
	done        chan struct{}
	err         error
	handler     messaging.Handler[*Event]
	lastEventID string
	maxLineSize int
	mutex       sync.Mutex
	numHandlers int
	onError     []func(error)
	onOpen      []func()
	retry       time.Duration
	running     bool
	since       time.Time
	streamURL   *url.URL
	userAgent   string
}

// NewSubscriber creates a new Subscriber for the event stream at streamURL.
func NewSubscriber(streamURL string, options ...func(*Option)) (*Subscriber, error) {
	if streamURL = strings.TrimSpace(streamURL); streamURL == "" {
		return nil, fmt.Errorf("sse_subscriber: %w: stream URL is required", eventstreams.ErrInvalid)
	}

	u, err := url.Parse(streamURL)
	if err != nil {
		return nil, fmt.Errorf("sse_subscriber: failed to parse stream url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("sse_subscriber: %w: unsupported scheme %q", eventstreams.ErrInvalid, u.Scheme)
	}

	opts := &Option{}
	for _, opt := range options {
		opt(opts)
	}

	s := &Subscriber{
		backOff:     opts.backOff,
		client:      opts.client,
		done:        make(chan struct{}),
		lastEventID: opts.lastEventID,
		maxLineSize: opts.maxLineSize,
		onError:     opts.onError,
		onOpen:      opts.onOpen,
		since:       opts.since,
		streamURL:   u,
		userAgent:   opts.userAgent,
	}

	if opts.ctx != nil {
		s.ctx, s.ctxCancel = context.WithCancel(opts.ctx)
	} else {
		s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	}

	if s.backOff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = reconnectInitial
		b.MaxInterval = reconnectMax
		b.MaxElapsedTime = 0
		s.backOff = b
	}

	if s.client == nil {
		s.client = cleanhttp.DefaultPooledClient()
	}

	if s.maxLineSize <= 0 {
		s.maxLineSize = DefaultMaxLineSize
	}

	if s.userAgent == "" {
		s.userAgent = DefaultUserAgent
	}
	return s, nil
}

// Add appends the provided handler to the chain of handlers for the Subscriber. It must not be called from within
// a handler.
func (s *Subscriber) Add(handler messaging.Handler[*Event]) bool {
	if handler == nil {
		return false
	}

	s.chain.Lock()
	defer s.chain.Unlock()
	if s.handler != nil {
		last := s.handler
		for {
			if last.Next() == nil {
				break
			}
			last = last.Next()
		}
		last.SetNext(handler)
	} else {
		s.handler = handler
	}
	s.numHandlers += 1
	return true
}

// Subscribe appends the optional list of handlers and starts consuming the event stream in the background.
func (s *Subscriber) Subscribe(handlers ...messaging.Handler[*Event]) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return fmt.Errorf("sse_subscriber: %w: %s", messaging.ErrSubscriberClosed, s.streamURL)
	}

	if s.running {
		return fmt.Errorf("sse_subscriber: %w: %s", messaging.ErrSubscribed, s.streamURL)
	}

	for _, h := range handlers {
		s.Add(h)
	}

	log.Info("[sse_subscriber:subscribe] consuming events", log.String("url", s.streamURL.String()))

	s.running = true
	go s.consume()
	return nil
}

// Close stops consuming the event stream and releases any resources used by the Subscriber. It waits for the
// handler currently running, if any, to return, so it must not be called from within a handler.
func (s *Subscriber) Close() error {
	if s == nil {
		return eventstreams.ErrInvalid
	}

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return fmt.Errorf("sse_subscriber: %w: %s", messaging.ErrSubscriberClosed, s.streamURL)
	}
	s.closed = true
	running := s.running
	s.mutex.Unlock()

	s.ctxCancel()
	if running {
		<-s.done
	} else {
		close(s.done)
	}
	return nil
}

// Context returns the context handlers run under. It is cancelled when the Subscriber is closed.
func (s *Subscriber) Context() context.Context {
	return s.ctx
}

// Done returns a channel that is closed once the Subscriber stops consuming the event stream.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the Subscriber stopped consuming the event stream. It returns nil while the Subscriber is
// running, after Close, and when the server asked the client to stop.
func (s *Subscriber) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// LastEventID returns the last event ID received from the event stream.
func (s *Subscriber) LastEventID() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastEventID
}

// URL returns the URL of the event stream.
func (s *Subscriber) URL() string {
	return s.streamURL.String()
}

// String returns a string representing the current state of the Subscriber.
func (s *Subscriber) String() string {
	s.chain.RLock()
	handlers := messaging.Names(s.handler)
	s.chain.RUnlock()

	return string(anchor.ToJSONFormatted(map[string]any{
		"sse_subscriber": map[string]any{
			"url":           s.URL(),
			"user_agent":    s.userAgent,
			"last_event_id": s.LastEventID(),
			"max_line_size": s.maxLineSize,
			"handlers": map[string]any{
				"count": len(handlers),
				"names": handlers,
			},
		},
	}))
}

func (s *Subscriber) consume() {
	defer close(s.done)

	err := s.run()
	if err != nil {
		log.Error("[sse_subscriber:consume]", log.Err(err))
		s.reportError(err)
	} else {
		log.Info("[sse_subscriber:consume] closing subscription", log.String("url", s.streamURL.String()))
	}

	s.mutex.Lock()
	s.err = err
	s.mutex.Unlock()
}

func (s *Subscriber) run() error {
	s.backOff.Reset()
	for {
		delivered, err := s.stream()
		if s.ctx.Err() != nil {
			return nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			if errors.Is(permanent.Err, errStreamNoContent) {
				log.Info("[sse_subscriber:run] server requested the client to stop", log.String("url", s.streamURL.String()))
				return nil
			}
			return fmt.Errorf("sse_subscriber: %w", permanent.Err)
		}

		if delivered > 0 {
			s.backOff.Reset()
		}

		if err != nil {
			log.Warn("[sse_subscriber:run] connection lost", log.Err(err), log.Int("delivered", delivered))
			s.reportError(err)
		} else {
			log.Info("[sse_subscriber:run] stream ended", log.Int("delivered", delivered))
		}

		delay := s.backOff.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("sse_subscriber: %w: %s", ErrRetriesExhausted, s.streamURL)
		}

		s.mutex.Lock()
		if delay < s.retry {
			delay = s.retry
		}
		s.mutex.Unlock()

		log.Debug("[sse_subscriber:run] reconnecting", log.String("delay", delay.String()))

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// stream performs a single connection to the event stream and dispatches its events until the stream ends. It
// returns the number of events dispatched.
func (s *Subscriber) stream() (int, error) {
	req, err := s.newRequest()
	if err != nil {
		return 0, backoff.Permanent(err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return 0, err
	}

	log.Info("[sse_subscriber:stream] connected",
		log.String("url", req.URL.String()),
		log.String("last_event_id", req.Header.Get("Last-Event-ID")))

	for _, fn := range s.onOpen {
		fn()
	}

	reader := NewReader(resp.Body, s.maxLineSize)
	reader.lastEventID = s.LastEventID()

	delivered := 0
	for {
		event, err := reader.Next()

		s.mutex.Lock()
		s.lastEventID = reader.LastEventID()
		if r := reader.Retry(); r > 0 {
			s.retry = r
		}
		s.mutex.Unlock()

		if err != nil {
			if errors.Is(err, io.EOF) {
				return delivered, nil
			}
			return delivered, err
		}

		delivered++
		s.dispatch(event)
	}
}

func (s *Subscriber) newRequest() (*http.Request, error) {
	u := *s.streamURL
	lastEventID := s.LastEventID()
	if lastEventID == "" && !s.since.IsZero() {
		q := u.Query()
		q.Set(SinceParam, s.since.UTC().Format(time.RFC3339))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("sse_subscriber: %w", err)
	}

	req.Header.Set("Accept", contentTypeEventStream)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", s.userAgent)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	return req, nil
}

func (s *Subscriber) dispatch(event *Event) {
	s.chain.RLock()
	defer s.chain.RUnlock()

	if s.handler == nil {
		return
	}

	if err := s.handler.OnMessage(s.ctx, event); err != nil {
		log.Error("[sse_subscriber:dispatch]", log.Err(err), log.String("id", event.ID))
		s.reportError(err)
	}
}

func (s *Subscriber) reportError(err error) {
	for _, fn := range s.onError {
		fn(err)
	}
}

// checkResponse classifies the response to a connection attempt. Errors wrapped with backoff.Permanent end the
// subscription; any other error is retried.
func checkResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if err != nil || mediaType != contentTypeEventStream {
			return backoff.Permanent(fmt.Errorf("%w: %q", ErrContentType, resp.Header.Get("Content-Type")))
		}
		return nil
	case resp.StatusCode == http.StatusNoContent:
		return backoff.Permanent(errStreamNoContent)
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status))
	}
}
