package reader

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning        = errors.New("transmission reader already running")
	ErrStreamClosed          = errors.New("stream closed by server")
	ErrUnexpectedStatus      = errors.New("unexpected status")
	ErrUnexpectedContentType = errors.New("unexpected content type")
)

// TransportError is the cause of a disconnection. Op is "connect" when no
// stream was established and "read" when an open stream failed.
type TransportError struct {
	URL string
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
