package reader

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satellite/models"
)

// sseServer serves body once per connection and then closes it.
func sseServer(t *testing.T, body func(conn int) string) (*httptest.Server, *int32) {
	t.Helper()
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&conns, 1)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, body(int(n)))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

type recorder struct {
	mu          sync.Mutex
	events      []models.TransmissionEvent
	disconnects []models.DisconnectNotice
	at          []time.Time
	inflight    int32
	overlapped  bool
	notify      chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 128)}
}

func (r *recorder) enter() {
	if atomic.AddInt32(&r.inflight, 1) > 1 {
		r.mu.Lock()
		r.overlapped = true
		r.mu.Unlock()
	}
}

func (r *recorder) leave() {
	atomic.AddInt32(&r.inflight, -1)
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) onEvent(e models.TransmissionEvent) {
	r.enter()
	defer r.leave()
	time.Sleep(time.Millisecond)
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) onDisconnect(n models.DisconnectNotice) {
	r.enter()
	defer r.leave()
	r.mu.Lock()
	r.disconnects = append(r.disconnects, n)
	r.at = append(r.at, time.Now())
	r.mu.Unlock()
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events), len(r.disconnects)
}

// waitFor blocks until cond holds or the deadline passes.
func (r *recorder) waitFor(t *testing.T, cond func(events, disconnects int) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cond(r.counts()) {
			return
		}
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			e, d := r.counts()
			t.Fatalf("timed out with %d events and %d disconnects", e, d)
		}
	}
}

func TestTransmissionReaderDeliversEventThenReconnects(t *testing.T) {
	srv, conns := sseServer(t, func(int) string {
		return "retry: 50\nevent: transmission-started\ndata: {\"uuid\":\"u1\"}\nid: 9\n\n"
	})

	rec := newRecorder()
	r := NewTransmissionReader(Config{URL: srv.URL, DefaultRetry: time.Second}, rec.onEvent, rec.onDisconnect)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	rec.waitFor(t, func(events, disconnects int) bool { return events >= 2 && disconnects >= 1 })

	rec.mu.Lock()
	defer rec.mu.Unlock()
	first := rec.events[0]
	assert.Equal(t, "transmission-started", first.Event)
	assert.Equal(t, `{"uuid":"u1"}`, first.Message)
	assert.Equal(t, "9", first.ID)
	assert.False(t, first.ReceivedAt.IsZero())

	notice := rec.disconnects[0]
	assert.Equal(t, 50*time.Millisecond, notice.ReconnectDelay)
	assert.Equal(t, 1, notice.Attempt)
	assert.ErrorIs(t, notice.Err, ErrStreamClosed)
	var te *TransportError
	require.True(t, errors.As(notice.Err, &te))
	assert.Equal(t, "read", te.Op)

	assert.GreaterOrEqual(t, atomic.LoadInt32(conns), int32(2))
	assert.Equal(t, "9", r.LastEventID())
	assert.Equal(t, 50*time.Millisecond, r.RetryDelay())
}

func TestTransmissionReaderWaitsRetryBetweenAttempts(t *testing.T) {
	const delay = 80 * time.Millisecond
	srv, _ := sseServer(t, func(int) string {
		return fmt.Sprintf("retry: %d\ndata: x\n\n", delay.Milliseconds())
	})

	rec := newRecorder()
	r := NewTransmissionReader(Config{URL: srv.URL}, rec.onEvent, rec.onDisconnect)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	rec.waitFor(t, func(_, disconnects int) bool { return disconnects >= 3 })

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, n := range rec.disconnects[:3] {
		assert.Equal(t, delay, n.ReconnectDelay)
		assert.Equal(t, i+1, n.Attempt)
	}
	for i := 1; i < 3; i++ {
		assert.GreaterOrEqual(t, rec.at[i].Sub(rec.at[i-1]), delay)
	}
}

func TestTransmissionReaderReconnectsWithPerConnectionDelays(t *testing.T) {
	delays := []time.Duration{40 * time.Millisecond, 120 * time.Millisecond, 70 * time.Millisecond}
	const streamed = 20

	var (
		mu      sync.Mutex
		started []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		started = append(started, time.Now())
		n := len(started)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if n <= len(delays) {
			fmt.Fprintf(w, "retry: %d\n\n", delays[n-1].Milliseconds())
			return
		}
		for i := 0; i < streamed; i++ {
			fmt.Fprintf(w, "id: %d\ndata: e%d\n\n", i, i)
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec := newRecorder()
	r := NewTransmissionReader(Config{URL: srv.URL, DefaultRetry: time.Hour}, rec.onEvent, rec.onDisconnect)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	rec.waitFor(t, func(events, _ int) bool { return events >= streamed })

	rec.mu.Lock()
	defer rec.mu.Unlock()
	mu.Lock()
	defer mu.Unlock()

	require.Len(t, rec.disconnects, len(delays))
	require.Len(t, started, len(delays)+1)
	for i, n := range rec.disconnects {
		assert.Equal(t, delays[i], n.ReconnectDelay, "notice %d", i+1)
		assert.Equal(t, i+1, n.Attempt)
		assert.ErrorIs(t, n.Err, ErrStreamClosed)
		assert.GreaterOrEqual(t, started[i+1].Sub(rec.at[i]), delays[i], "gap before connection %d", i+2)
	}

	require.Len(t, rec.events, streamed)
	for i, e := range rec.events {
		assert.Equal(t, fmt.Sprintf("e%d", i), e.Message)
		assert.Equal(t, fmt.Sprint(i), e.ID)
	}
	assert.Equal(t, StateStreaming, r.State())
}

func TestTransmissionReaderConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := newRecorder()
	r := NewTransmissionReader(Config{URL: url, DefaultRetry: 20 * time.Millisecond}, rec.onEvent, rec.onDisconnect)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	rec.waitFor(t, func(_, disconnects int) bool { return disconnects >= 2 })

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.events)
	notice := rec.disconnects[0]
	assert.Equal(t, 20*time.Millisecond, notice.ReconnectDelay)
	var te *TransportError
	require.True(t, errors.As(notice.Err, &te))
	assert.Equal(t, "connect", te.Op)
	assert.Equal(t, url, te.URL)
}

func TestTransmissionReaderRejectsBadResponses(t *testing.T) {
	cases := map[string]struct {
		handler http.HandlerFunc
		want    error
	}{
		"status": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			want: ErrUnexpectedStatus,
		},
		"content type": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"message":"nope"}`)
			},
			want: ErrUnexpectedContentType,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			rec := newRecorder()
			r := NewTransmissionReader(Config{URL: srv.URL, DefaultRetry: 20 * time.Millisecond}, rec.onEvent, rec.onDisconnect)
			require.NoError(t, r.Start(context.Background()))
			defer r.Stop()

			rec.waitFor(t, func(_, disconnects int) bool { return disconnects >= 1 })

			rec.mu.Lock()
			defer rec.mu.Unlock()
			assert.Empty(t, rec.events)
			assert.ErrorIs(t, rec.disconnects[0].Err, tc.want)
		})
	}
}

func TestTransmissionReaderCallbacksDoNotOverlap(t *testing.T) {
	srv, _ := sseServer(t, func(int) string {
		return "retry: 1\ndata: a\n\ndata: b\n\ndata: c\n\n"
	})

	rec := newRecorder()
	r := NewTransmissionReader(Config{URL: srv.URL}, rec.onEvent, rec.onDisconnect)
	require.NoError(t, r.Start(context.Background()))

	rec.waitFor(t, func(events, disconnects int) bool { return events >= 12 && disconnects >= 4 })
	r.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.False(t, rec.overlapped)
}

func TestTransmissionReaderStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: hello\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec := newRecorder()
	r := NewTransmissionReader(Config{URL: srv.URL}, rec.onEvent, rec.onDisconnect)
	assert.Equal(t, StateIdle, r.State())
	require.NoError(t, r.Start(context.Background()))

	rec.waitFor(t, func(events, _ int) bool { return events >= 1 })
	assert.Equal(t, StateStreaming, r.State())

	r.Stop()
	events, disconnects := rec.counts()

	select {
	case <-r.Done():
	default:
		t.Fatal("done channel not closed after Stop")
	}
	assert.Equal(t, StateStopped, r.State())

	time.Sleep(50 * time.Millisecond)
	e2, d2 := rec.counts()
	assert.Equal(t, events, e2)
	assert.Equal(t, disconnects, d2)
	assert.Zero(t, disconnects)

	// Stop is idempotent.
	r.Stop()
}

func TestTransmissionReaderContextCancelStops(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewTransmissionReader(Config{URL: srv.URL, DefaultRetry: time.Hour}, nil, nil)
	require.NoError(t, r.Start(ctx))

	cancel()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not stop on context cancel")
	}
	assert.Equal(t, StateStopped, r.State())
}

func TestTransmissionReaderRestartsAfterContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewTransmissionReader(Config{URL: srv.URL, DefaultRetry: time.Hour}, nil, nil)
	require.NoError(t, r.Start(ctx))

	cancel()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not stop on context cancel")
	}

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrAlreadyRunning)
	r.Stop()
	assert.Equal(t, StateStopped, r.State())
}

func TestTransmissionReaderDoubleStart(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewTransmissionReader(Config{URL: srv.URL, DefaultRetry: time.Hour}, nil, nil)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.ErrorIs(t, r.Start(context.Background()), ErrAlreadyRunning)
}

func TestTransmissionReaderStateTransitions(t *testing.T) {
	srv, _ := sseServer(t, func(int) string { return "retry: 10\ndata: x\n\n" })

	var mu sync.Mutex
	var seen []State
	r := NewTransmissionReader(Config{
		URL: srv.URL,
		OnStateChange: func(_, to State) {
			mu.Lock()
			seen = append(seen, to)
			mu.Unlock()
		},
	}, nil, nil)

	rec := newRecorder()
	r.onDisconnect = rec.onDisconnect
	require.NoError(t, r.Start(context.Background()))
	rec.waitFor(t, func(_, disconnects int) bool { return disconnects >= 1 })
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 4)
	assert.Equal(t, []State{StateConnecting, StateStreaming, StateDisconnected}, seen[:3])
	assert.Equal(t, StateStopped, seen[len(seen)-1])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "state(42)", State(42).String())
}
