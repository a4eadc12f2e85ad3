package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	"satellite/logger"
	"satellite/models"
	"satellite/reader/sse"
)

const defaultRetry = 3 * time.Second

// State is a position in the reader's connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateDisconnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDisconnected:
		return "disconnected"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config describes the stream a TransmissionReader follows.
type Config struct {
	URL string
	// HTTPClient must not carry a total timeout or the stream is cut
	// periodically. Defaults to a client without one.
	HTTPClient *http.Client
	// DefaultRetry is used until the server sends a retry field.
	DefaultRetry time.Duration
	MaxLineBytes int
	Header       http.Header
	// OnStateChange observes every transition. It runs on the reader
	// goroutine and must not block.
	OnStateChange func(from, to State)
}

// TransmissionReader keeps one subscription to the transmissions stream
// alive, reconnecting after every disconnection until stopped. Handlers run
// one at a time on a single goroutine owned by the reader.
type TransmissionReader struct {
	cfg          Config
	onEvent      func(models.TransmissionEvent)
	onDisconnect func(models.DisconnectNotice)

	mu          sync.RWMutex
	running     bool
	state       State
	retry       time.Duration
	lastEventID string
	attempts    int
	cancel      context.CancelFunc
	done        chan struct{}

	wg  *sync.WaitGroup
	log *logger.Log
}

// NewTransmissionReader creates an idle reader. Nil handlers are allowed.
func NewTransmissionReader(cfg Config, onEvent func(models.TransmissionEvent), onDisconnect func(models.DisconnectNotice)) *TransmissionReader {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.DefaultRetry <= 0 {
		cfg.DefaultRetry = defaultRetry
	}
	if onEvent == nil {
		onEvent = func(models.TransmissionEvent) {}
	}
	if onDisconnect == nil {
		onDisconnect = func(models.DisconnectNotice) {}
	}

	done := make(chan struct{})
	close(done)

	return &TransmissionReader{
		cfg:          cfg,
		onEvent:      onEvent,
		onDisconnect: onDisconnect,
		state:        StateIdle,
		retry:        cfg.DefaultRetry,
		done:         done,
		wg:           &sync.WaitGroup{},
		log:          logger.GetLogger(),
	}
}

// Start launches the receive loop and returns immediately. The loop runs
// until Stop is called or ctx is cancelled.
func (r *TransmissionReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.log.WithComponent("transmission_reader").WithFields(logger.Fields{
		"url":           r.cfg.URL,
		"default_retry": r.cfg.DefaultRetry.String(),
	}).Info("starting transmission reader")

	r.wg.Add(1)
	go r.run(loopCtx, done)
	return nil
}

// Stop ends the subscription and waits for the receive loop to exit. No
// handler runs after Stop returns. Calling Stop from inside a handler
// deadlocks; cancel the Start context there instead.
func (r *TransmissionReader) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.running = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	r.wg.Wait()
	r.log.WithComponent("transmission_reader").Info("transmission reader stopped")
}

// Done is closed when the receive loop has exited.
func (r *TransmissionReader) Done() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.done
}

func (r *TransmissionReader) URL() string {
	return r.cfg.URL
}

func (r *TransmissionReader) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// RetryDelay is the delay the next reconnection will wait.
func (r *TransmissionReader) RetryDelay() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.retry
}

// LastEventID is the id of the most recent event. It is not sent back to
// the server on reconnect.
func (r *TransmissionReader) LastEventID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastEventID
}

func (r *TransmissionReader) setState(to State) {
	r.mu.Lock()
	from := r.state
	r.state = to
	r.mu.Unlock()

	if from == to {
		return
	}
	r.log.WithComponent("transmission_reader").WithFields(logger.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("state change")
	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(from, to)
	}
}

func (r *TransmissionReader) setRetry(d time.Duration) {
	r.mu.Lock()
	r.retry = d
	r.mu.Unlock()
}

// run is the supervising loop: connect, stream, notify, wait, repeat.
func (r *TransmissionReader) run(ctx context.Context, done chan struct{}) {
	defer r.wg.Done()
	defer close(done)
	defer func() {
		r.mu.Lock()
		if r.done == done {
			r.running = false
		}
		r.mu.Unlock()
	}()
	defer r.setState(StateStopped)

	log := r.log.WithComponent("transmission_reader").WithFields(logger.Fields{"url": r.cfg.URL})

	for {
		if ctx.Err() != nil {
			return
		}

		r.setState(StateConnecting)
		cause := r.stream(ctx)
		if ctx.Err() != nil {
			return
		}

		r.setState(StateDisconnected)

		r.mu.Lock()
		r.attempts++
		notice := models.DisconnectNotice{
			ReconnectDelay: r.retry,
			Err:            cause,
			Attempt:        r.attempts,
		}
		r.mu.Unlock()

		logger.IncrementDisconnect()
		log.WithError(cause).WithFields(logger.Fields{
			"retry_in": notice.ReconnectDelay.String(),
			"attempt":  notice.Attempt,
		}).Warn("transmission stream disconnected")
		r.log.LogMetric("transmission_reader", "stream_disconnects", int64(1), "counter", nil)

		r.onDisconnect(notice)

		timer := time.NewTimer(notice.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// stream opens one connection and delivers its events. It always returns
// the reason the stream ended.
func (r *TransmissionReader) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.URL, nil)
	if err != nil {
		return &TransportError{URL: r.cfg.URL, Op: "connect", Err: err}
	}
	for k, v := range r.cfg.Header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{URL: r.cfg.URL, Op: "connect", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{URL: r.cfg.URL, Op: "connect", Err: fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)}
	}
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mediaType != "text/event-stream" {
		return &TransportError{URL: r.cfg.URL, Op: "connect", Err: fmt.Errorf("%w: %q", ErrUnexpectedContentType, resp.Header.Get("Content-Type"))}
	}

	r.setState(StateStreaming)
	r.log.WithComponent("transmission_reader").WithField("url", r.cfg.URL).Info("transmission stream connected")

	dec := sse.NewDecoder(resp.Body, r.cfg.MaxLineBytes)
	dec.OnRetry = r.setRetry

	for {
		frame, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamClosed
			}
			return &TransportError{URL: r.cfg.URL, Op: "read", Err: err}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		event := models.TransmissionEvent{
			Event:      frame.Event,
			Message:    frame.Data,
			ID:         frame.ID,
			ReceivedAt: time.Now().UTC(),
		}

		r.mu.Lock()
		r.lastEventID = frame.ID
		r.mu.Unlock()

		logger.IncrementEventRead(len(frame.Data))
		r.onEvent(event)
	}
}
