package sse

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultEventType is the type of events that do not carry an event field.
	DefaultEventType = "message"

	// DefaultMaxLineSize defines the default maximum size in bytes of a single line in the event stream.
	DefaultMaxLineSize = 1 << 20

	bom = "\ufeff"
)

// Event is a single event dispatched from an event stream.
type Event struct {
	// ID is the last event ID at the time the event was dispatched.
	ID string

	// Type is the event type, DefaultEventType unless the stream names one.
	Type string

	// Data is the event payload. Multiple data lines are joined with a newline.
	Data []byte
}

// Reader parses the text/event-stream format.
type Reader struct {
	data        bytes.Buffer
	eventType   string
	lastEventID string
	retry       time.Duration
	scanner     *bufio.Scanner
	started     bool
}

// NewReader creates a new Reader consuming r. Lines longer than maxLineSize bytes cause Next to fail with
// ErrLineTooLong; when maxLineSize is not positive DefaultMaxLineSize is used.
func NewReader(r io.Reader, maxLineSize int) *Reader {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, min(4096, maxLineSize)), maxLineSize)
	s.Split((&lineSplitter{}).split)
	return &Reader{scanner: s}
}

// Next returns the next dispatched event. At the end of the stream io.EOF is returned and any partially
// received event is discarded.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if !r.started {
			r.started = true
			line = strings.TrimPrefix(line, bom)
		}

		if line == "" {
			if e := r.dispatch(); e != nil {
				return e, nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		r.process(field, value)
	}

	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("sse_reader: %w", ErrLineTooLong)
		}
		return nil, fmt.Errorf("sse_reader: %w", err)
	}
	return nil, io.EOF
}

// LastEventID returns the value of the last event ID buffer.
func (r *Reader) LastEventID() string {
	return r.lastEventID
}

// Retry returns the reconnection time most recently requested by the stream, or zero.
func (r *Reader) Retry() time.Duration {
	return r.retry
}

func (r *Reader) process(field string, value string) {
	switch field {
	case "event":
		r.eventType = value
	case "data":
		r.data.WriteString(value)
		r.data.WriteByte('\n')
	case "id":
		if !strings.ContainsRune(value, 0) {
			r.lastEventID = value
		}
	case "retry":
		if isDigits(value) {
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
				r.retry = time.Duration(ms) * time.Millisecond
			}
		}
	default:
		// ignored
	}
}

func (r *Reader) dispatch() *Event {
	defer func() {
		r.data.Reset()
		r.eventType = ""
	}()

	if r.data.Len() == 0 {
		return nil
	}

	e := &Event{
		ID:   r.lastEventID,
		Type: r.eventType,
		Data: bytes.Clone(bytes.TrimSuffix(r.data.Bytes(), []byte{'\n'})),
	}
	if e.Type == "" {
		e.Type = DefaultEventType
	}
	return e
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// lineSplitter splits on the line endings an event stream may use: CRLF, LF, or CR.
type lineSplitter struct {
	// skipLF is set when a line ended with the last buffered byte, a CR, so an LF arriving next belongs to it.
	skipLF bool
}

// split is a bufio.SplitFunc. A CR ends a line as soon as it is read, so an idle stream using CR line endings
// still dispatches its last event.
func (l *lineSplitter) split(data []byte, atEOF bool) (int, []byte, error) {
	if l.skipLF && len(data) > 0 {
		l.skipLF = false
		if data[0] == '\n' {
			return 1, nil, nil
		}
	}

	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}

		if i+1 == len(data) {
			l.skipLF = !atEOF
			return i + 1, data[:i], nil
		}

		if data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
