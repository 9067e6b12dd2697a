package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/transientvariable/eventstreams/pkg/messaging"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

type recordingHandler struct {
	err    error
	events chan *Event
	next   messaging.Handler[*Event]
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{events: make(chan *Event, 64)}
}

func (h *recordingHandler) Name() string                           { return "recording" }
func (h *recordingHandler) Next() messaging.Handler[*Event]        { return h.next }
func (h *recordingHandler) SetNext(next messaging.Handler[*Event]) { h.next = next }

func (h *recordingHandler) OnMessage(ctx context.Context, msg *Event) error {
	h.events <- msg
	if h.err != nil {
		return h.err
	}
	return messaging.Forward[*Event](ctx, h, msg)
}

func (h *recordingHandler) receive(t *testing.T) *Event {
	t.Helper()
	select {
	case e := <-h.events:
		return e
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for event")
		return nil
	}
}

func writeEvents(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, e := range events {
		_, _ = fmt.Fprint(w, e)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func waitDone(t *testing.T, s *Subscriber) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for subscriber to stop")
	}
}

func TestNewSubscriber(t *testing.T) {
	_, err := NewSubscriber("  ")
	assert.Error(t, err)

	_, err = NewSubscriber("ftp://example.org/stream")
	assert.Error(t, err)

	s, err := NewSubscriber("https://stream.wikimedia.org/v2/stream/recentchange")
	require.NoError(t, err)
	assert.Equal(t, "https://stream.wikimedia.org/v2/stream/recentchange", s.URL())
	assert.Contains(t, s.String(), "sse_subscriber")
	require.NoError(t, s.Close())
}

func TestSubscriber_DeliversInOrder(t *testing.T) {
	var userAgent, accept atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		accept.Store(r.Header.Get("Accept"))
		writeEvents(w,
			"event: message\nid: 1\ndata: {\"n\":1}\n\n",
			": comment\n\n",
			"event: message\nid: 2\ndata: {\"n\":2}\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	var opened atomic.Int32
	s, err := NewSubscriber(srv.URL, WithUserAgent("test-agent/1.0"), WithOnOpen(func() { opened.Add(1) }))
	require.NoError(t, err)

	h := newRecordingHandler()
	require.NoError(t, s.Subscribe(h))

	first := h.receive(t)
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, `{"n":1}`, string(first.Data))

	second := h.receive(t)
	assert.Equal(t, "2", second.ID)
	assert.Equal(t, `{"n":2}`, string(second.Data))

	assert.Equal(t, "test-agent/1.0", userAgent.Load())
	assert.Equal(t, "text/event-stream", accept.Load())
	assert.Equal(t, int32(1), opened.Load())
	assert.Equal(t, "2", s.LastEventID())

	require.NoError(t, s.Close())
	waitDone(t, s)
	assert.NoError(t, s.Err())
}

func TestSubscriber_ReconnectsWithLastEventID(t *testing.T) {
	var mutex sync.Mutex
	var lastEventIDs []string
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutex.Lock()
		lastEventIDs = append(lastEventIDs, r.Header.Get("Last-Event-ID"))
		mutex.Unlock()

		switch attempts.Add(1) {
		case 1:
			writeEvents(w, "id: a\ndata: one\n\n", "id: b\ndata: two\n\n")
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			writeEvents(w, "id: c\ndata: three\n\n")
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	var reported atomic.Int32
	s, err := NewSubscriber(srv.URL,
		WithBackOff(&backoff.ZeroBackOff{}),
		WithOnError(func(error) { reported.Add(1) }))
	require.NoError(t, err)

	h := newRecordingHandler()
	require.NoError(t, s.Subscribe(h))

	assert.Equal(t, "one", string(h.receive(t).Data))
	assert.Equal(t, "two", string(h.receive(t).Data))
	third := h.receive(t)
	assert.Equal(t, "three", string(third.Data))
	assert.Equal(t, "c", third.ID)

	require.NoError(t, s.Close())

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, []string{"", "b", "b"}, lastEventIDs)
	assert.GreaterOrEqual(t, reported.Load(), int32(1))
}

func TestSubscriber_InitialLastEventIDAndSince(t *testing.T) {
	type request struct {
		lastEventID string
		since       string
	}
	requests := make(chan request, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- request{lastEventID: r.Header.Get("Last-Event-ID"), since: r.URL.Query().Get(SinceParam)}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	since := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

	s, err := NewSubscriber(srv.URL, WithSince(since))
	require.NoError(t, err)
	require.NoError(t, s.Subscribe())
	waitDone(t, s)
	assert.Equal(t, request{since: "2021-03-01T12:00:00Z"}, <-requests)

	s, err = NewSubscriber(srv.URL, WithSince(since), WithLastEventID("resume-here"))
	require.NoError(t, err)
	require.NoError(t, s.Subscribe())
	waitDone(t, s)
	assert.Equal(t, request{lastEventID: "resume-here"}, <-requests)
}

func TestSubscriber_NoContentStops(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewSubscriber(srv.URL, WithBackOff(&backoff.ZeroBackOff{}))
	require.NoError(t, err)
	require.NoError(t, s.Subscribe())

	waitDone(t, s)
	assert.NoError(t, s.Err())
	assert.Equal(t, int32(1), attempts.Load())
}

func TestSubscriber_PermanentFailures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		expected error
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			expected: ErrUnexpectedStatus,
		},
		{
			name: "wrong content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{}`))
			},
			expected: ErrContentType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			s, err := NewSubscriber(srv.URL, WithBackOff(&backoff.ZeroBackOff{}))
			require.NoError(t, err)
			require.NoError(t, s.Subscribe())

			waitDone(t, s)
			assert.ErrorIs(t, s.Err(), tt.expected)
		})
	}
}

func TestSubscriber_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, err := NewSubscriber(srv.URL, WithBackOff(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)))
	require.NoError(t, err)
	require.NoError(t, s.Subscribe())

	waitDone(t, s)
	assert.ErrorIs(t, s.Err(), ErrRetriesExhausted)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSubscriber_HandlerErrorDoesNotStopStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, "data: one\n\n", "data: two\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	errs := make(chan error, 4)
	s, err := NewSubscriber(srv.URL, WithOnError(func(err error) { errs <- err }))
	require.NoError(t, err)

	failing := newRecordingHandler()
	failing.err = errors.New("listener failed")
	require.NoError(t, s.Subscribe(failing))

	assert.Equal(t, "one", string(failing.receive(t).Data))
	assert.Equal(t, "two", string(failing.receive(t).Data))
	assert.EqualError(t, <-errs, "listener failed")

	require.NoError(t, s.Close())
}

func TestSubscriber_HandlerChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, "data: x\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	s, err := NewSubscriber(srv.URL)
	require.NoError(t, err)

	first, second := newRecordingHandler(), newRecordingHandler()
	assert.True(t, s.Add(first))
	assert.False(t, s.Add(nil))
	require.NoError(t, s.Subscribe(second))

	assert.Equal(t, "x", string(first.receive(t).Data))
	assert.Equal(t, "x", string(second.receive(t).Data))
	assert.Equal(t, []string{"recording", "recording"}, messaging.Names[*Event](first))

	require.NoError(t, s.Close())
}

func TestSubscriber_Close(t *testing.T) {
	s, err := NewSubscriber("http://127.0.0.1:1/stream")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	waitDone(t, s)

	assert.ErrorIs(t, s.Close(), messaging.ErrSubscriberClosed)
	assert.ErrorIs(t, s.Subscribe(), messaging.ErrSubscriberClosed)
}

func TestSubscriber_SubscribeTwice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w)
		<-r.Context().Done()
	}))
	defer srv.Close()

	s, err := NewSubscriber(srv.URL)
	require.NoError(t, err)
	require.NoError(t, s.Subscribe())
	assert.ErrorIs(t, s.Subscribe(), messaging.ErrSubscribed)
	require.NoError(t, s.Close())
}

func TestSubscriber_RetryFieldIsReconnectFloor(t *testing.T) {
	var mutex sync.Mutex
	var connected []time.Time
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutex.Lock()
		connected = append(connected, time.Now())
		mutex.Unlock()

		switch attempts.Add(1) {
		case 1:
			writeEvents(w, "retry: 300\nid: a\ndata: one\n\n")
		case 2:
			writeEvents(w, "data: two\n\n")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	s, err := NewSubscriber(srv.URL, WithBackOff(&backoff.ZeroBackOff{}))
	require.NoError(t, err)

	h := newRecordingHandler()
	require.NoError(t, s.Subscribe(h))
	waitDone(t, s)
	require.NoError(t, s.Err())

	mutex.Lock()
	defer mutex.Unlock()
	require.Len(t, connected, 3)
	assert.GreaterOrEqual(t, connected[1].Sub(connected[0]), 300*time.Millisecond)
	assert.GreaterOrEqual(t, connected[2].Sub(connected[1]), 300*time.Millisecond)
}

func TestSubscriber_Callbacks(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	var opened, reported atomic.Int32
	s, err := NewSubscriber(srv.URL,
		WithOnOpen(func() { opened.Add(1) }),
		WithOnError(func(error) { reported.Add(1) }),
		WithOnError(func(error) { reported.Add(10) }),
		WithOnError(nil))
	require.NoError(t, err)
	require.NoError(t, s.Subscribe())
	waitDone(t, s)

	assert.ErrorIs(t, s.Err(), ErrUnexpectedStatus)
	assert.Equal(t, int32(11), reported.Load())
	assert.Zero(t, opened.Load())
}

func TestSubscriber_ContextCancelledOnClose(t *testing.T) {
	s, err := NewSubscriber("http://localhost")
	require.NoError(t, err)
	require.NoError(t, s.Context().Err())

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Context().Err(), context.Canceled)
}
