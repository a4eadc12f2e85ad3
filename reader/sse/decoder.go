// Package sse decodes a server-sent event stream into frames.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultEvent is the event name used when a frame sets none.
const DefaultEvent = "message"

// DefaultMaxLine bounds a single line of the stream.
const DefaultMaxLine = 1 << 20

// Frame is one dispatched event.
type Frame struct {
	Event string
	Data  string
	// ID is the last event id seen on the stream, which may come from an
	// earlier frame.
	ID string
}

// Decoder reads frames from a stream. It is not safe for concurrent use.
type Decoder struct {
	scanner *bufio.Scanner

	// OnRetry, when set, is called as soon as a valid retry field is read.
	OnRetry func(time.Duration)

	lastID    string
	eventType string
	data      strings.Builder
	hasData   bool
}

// NewDecoder returns a decoder reading from r. maxLine <= 0 selects
// DefaultMaxLine.
func NewDecoder(r io.Reader, maxLine int) *Decoder {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	initial := 4096
	if maxLine < initial {
		initial = maxLine
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, initial), maxLine)
	s.Split(scanLines)
	return &Decoder{scanner: s}
}

// LastEventID returns the id buffer of the stream.
func (d *Decoder) LastEventID() string {
	return d.lastID
}

// Next blocks until a complete frame is available. It returns io.EOF when
// the stream ends; a partially received frame is discarded. Field level
// problems such as unknown fields or a malformed retry value are skipped.
func (d *Decoder) Next() (Frame, error) {
	for d.scanner.Scan() {
		line := d.scanner.Text()

		if line == "" {
			if frame, ok := d.dispatch(); ok {
				return frame, nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], line[i+1:]
			value = strings.TrimPrefix(value, " ")
		}
		d.process(field, value)
	}

	if err := d.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

func (d *Decoder) process(field, value string) {
	switch field {
	case "event":
		d.eventType = value
	case "data":
		if d.hasData {
			d.data.WriteByte('\n')
		}
		d.data.WriteString(value)
		d.hasData = true
	case "id":
		if !strings.ContainsRune(value, 0) {
			d.lastID = value
		}
	case "retry":
		if value == "" || strings.Trim(value, "0123456789") != "" {
			return
		}
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return
		}
		if d.OnRetry != nil {
			d.OnRetry(time.Duration(ms) * time.Millisecond)
		}
	}
}

func (d *Decoder) dispatch() (Frame, bool) {
	defer func() {
		d.eventType = ""
		d.data.Reset()
		d.hasData = false
	}()

	if !d.hasData {
		return Frame{}, false
	}
	event := d.eventType
	if event == "" {
		event = DefaultEvent
	}
	return Frame{Event: event, Data: d.data.String(), ID: d.lastID}, true
}

// scanLines splits on LF, CRLF or a lone CR.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// A CR at the end of the buffer may be followed by LF.
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
