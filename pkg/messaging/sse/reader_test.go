package sse

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *Reader) []*Event {
	t.Helper()
	var events []*Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, e)
	}
}

func TestReader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []*Event
	}{
		{
			name:     "single event",
			input:    "data: hello\n\n",
			expected: []*Event{{Type: "message", Data: []byte("hello")}},
		},
		{
			name:     "multi-line data",
			input:    "data: first\ndata: second\ndata\n\n",
			expected: []*Event{{Type: "message", Data: []byte("first\nsecond\n")}},
		},
		{
			name:     "named event with id",
			input:    "event: message\nid: 42\ndata: {\"type\":\"edit\"}\n\n",
			expected: []*Event{{ID: "42", Type: "message", Data: []byte(`{"type":"edit"}`)}},
		},
		{
			name:     "comments ignored",
			input:    ": keep-alive\n:\ndata: x\n\n",
			expected: []*Event{{Type: "message", Data: []byte("x")}},
		},
		{
			name:  "crlf and cr line endings",
			input: "data: a\r\n\r\ndata: b\r\rdata: c\n\n",
			expected: []*Event{
				{Type: "message", Data: []byte("a")},
				{Type: "message", Data: []byte("b")},
				{Type: "message", Data: []byte("c")},
			},
		},
		{
			name:  "id persists across events",
			input: "id: 1\ndata: a\n\ndata: b\n\nid\ndata: c\n\n",
			expected: []*Event{
				{ID: "1", Type: "message", Data: []byte("a")},
				{ID: "1", Type: "message", Data: []byte("b")},
				{ID: "", Type: "message", Data: []byte("c")},
			},
		},
		{
			name:     "id with NUL ignored",
			input:    "id: 7\ndata: a\n\nid: 8\x009\ndata: b\n\n",
			expected: []*Event{{ID: "7", Type: "message", Data: []byte("a")}, {ID: "7", Type: "message", Data: []byte("b")}},
		},
		{
			name:     "event without data is dropped",
			input:    "event: ping\n\nevent: ping\nid: 3\n\ndata: kept\n\n",
			expected: []*Event{{ID: "3", Type: "message", Data: []byte("kept")}},
		},
		{
			name:     "trailing partial event discarded",
			input:    "data: complete\n\ndata: partial\n",
			expected: []*Event{{Type: "message", Data: []byte("complete")}},
		},
		{
			name:     "only one leading space stripped",
			input:    "data:  two spaces\ndata:none\n\n",
			expected: []*Event{{Type: "message", Data: []byte(" two spaces\nnone")}},
		},
		{
			name:     "byte order mark stripped",
			input:    "\ufeffdata: bom\n\n",
			expected: []*Event{{Type: "message", Data: []byte("bom")}},
		},
		{
			name:     "unknown fields ignored",
			input:    "foo: bar\ndata: x\n\n",
			expected: []*Event{{Type: "message", Data: []byte("x")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := readAll(t, NewReader(strings.NewReader(tt.input), 0))
			assert.Equal(t, tt.expected, events)
		})
	}
}

func TestReader_Retry(t *testing.T) {
	r := NewReader(strings.NewReader("retry: 1500\ndata: a\n\nretry: soon\ndata: b\n\n"), 0)

	_, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, r.Retry())

	_, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, r.Retry())
}

func TestReader_LastEventID(t *testing.T) {
	r := NewReader(strings.NewReader("id: abc\n\n"), 0)
	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "abc", r.LastEventID())
}

func TestReader_LineTooLong(t *testing.T) {
	r := NewReader(strings.NewReader("data: "+strings.Repeat("x", 64)+"\n\n"), 16)
	_, err := r.Next()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestLineSplitter_CRAtBufferEnd(t *testing.T) {
	l := &lineSplitter{}
	advance, token, err := l.split([]byte("data: a\r"), false)
	require.NoError(t, err)
	assert.Equal(t, 8, advance)
	assert.Equal(t, []byte("data: a"), token)

	advance, token, err = l.split([]byte("\ndata: b\n"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, advance)
	assert.Nil(t, token)

	advance, token, err = l.split([]byte("data: b\n"), false)
	require.NoError(t, err)
	assert.Equal(t, 8, advance)
	assert.Equal(t, []byte("data: b"), token)

	l = &lineSplitter{}
	advance, token, err = l.split([]byte("\r"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, advance)
	assert.Empty(t, token)

	advance, token, err = l.split([]byte("\r"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, advance)
	assert.Empty(t, token)
}

func TestReader_CRDispatchesWithoutMoreInput(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	r := NewReader(pr, 0)
	events := make(chan *Event, 1)
	go func() {
		if e, err := r.Next(); err == nil {
			events <- e
		}
	}()

	_, err := pw.Write([]byte("data: a\r\r"))
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.Equal(t, []byte("a"), e.Data)
	case <-time.After(waitTimeout):
		require.FailNow(t, "event ending in CR was not dispatched")
	}
}

func TestReader_CRLFSplitAcrossReads(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		for _, chunk := range []string{"data: a\r", "\n\r", "\n"} {
			_, _ = pw.Write([]byte(chunk))
		}
		_ = pw.Close()
	}()

	events := readAll(t, NewReader(pr, 0))
	require.Len(t, events, 1)
	assert.Equal(t, []byte("a"), events[0].Data)
}
