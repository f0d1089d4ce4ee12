// Package stream consumes the portal's server-push notification channel: one
// long-lived text/event-stream response decoded incrementally into frames.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"

	"github.com/devilmonastery/jobboard/internal/client"
	"github.com/devilmonastery/jobboard/internal/pkg/idgen"
	"github.com/devilmonastery/jobboard/internal/pkg/metrics"
)

// State is the connection state of a Stream
type State int32

const (
	Connecting State = iota
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Handler receives decoded frames, in stream order, on the stream's read goroutine
type Handler func(Frame)

// StatusError is returned by Open when the server answers with a non-2xx status
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("stream rejected with status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("stream rejected with status %d", e.Status)
}

// Is lets errors.Is(err, client.ErrUnauthorized) match a 401 rejection
func (e *StatusError) Is(target error) bool {
	return target == client.ErrUnauthorized && e.Status == http.StatusUnauthorized
}

const readBufferSize = 4096

type options struct {
	httpClient *http.Client
	handlers   []Handler
	header     http.Header
}

// Option configures Open
type Option func(*options)

// WithHTTPClient sets the client used for the stream request. The client
// should not carry a Timeout: it would cut the stream off.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithHandler registers a handler before the first byte is read, so no frame
// can be missed.
func WithHandler(h Handler) Option {
	return func(o *options) {
		o.handlers = append(o.handlers, h)
	}
}

// WithHeader adds a request header
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.header.Add(key, value)
	}
}

// Stream is an open notification stream
type Stream struct {
	url    string
	cancel context.CancelFunc
	state  atomic.Int32
	closed atomic.Bool
	done   chan struct{}

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	err      error

	log *slog.Logger
}

// Open connects to the stream at url with token as bearer credential. It
// returns once the response headers arrive; frames are then read in the
// background until EOF, a read error, Close, or ctx cancellation.
func Open(ctx context.Context, url, token string, opts ...Option) (*Stream, error) {
	o := options{header: make(http.Header)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		url:      url,
		cancel:   cancel,
		done:     make(chan struct{}),
		handlers: make(map[int]Handler),
		log:      slog.Default().With(slog.String("component", "event_stream")),
	}
	s.state.Store(int32(Connecting))
	for _, h := range o.handlers {
		s.addHandler(h)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	for k, vs := range o.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", idgen.RequestID())
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token}).SetAuthHeader(req)
	}

	s.log.Debug("opening notification stream", slog.String("url", url))
	resp, err := o.httpClient.Do(req)
	if err != nil {
		cancel()
		s.state.Store(int32(Disconnected))
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		cancel()
		s.state.Store(int32(Disconnected))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	s.state.Store(int32(Connected))
	metrics.SetStreamConnected(true)
	s.log.Info("notification stream connected", slog.String("url", url))

	go s.readLoop(ctx, resp.Body)
	return s, nil
}

// OnEvent registers a handler and returns its cancel func. Frames decoded
// before registration are not replayed; use WithHandler to see every frame.
func (s *Stream) OnEvent(h Handler) (unsubscribe func()) {
	id := s.addHandler(h)
	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

// Close tears the stream down. Once Close returns no further frame is
// dispatched and no further handler is looked up; a handler call already
// under way finishes. Close is safe to call from a handler, in which case
// later handlers for the same frame are skipped.
func (s *Stream) Close() {
	s.mu.Lock()
	already := s.closed.Swap(true)
	s.mu.Unlock()
	if already {
		return
	}
	s.cancel()
}

// Done is closed when the read loop has exited
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the read error that ended the stream, or nil when it ended
// through EOF, Close, or context cancellation.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the current connection state
func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) addHandler(h Handler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	return id
}

func (s *Stream) readLoop(ctx context.Context, body io.ReadCloser) {
	defer close(s.done)
	defer func() {
		_ = body.Close()
		s.state.Store(int32(Disconnected))
		metrics.SetStreamConnected(false)
	}()

	dec := NewDecoder()
	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			metrics.StreamBytes.Add(float64(n))
			for _, f := range dec.Feed(buf[:n]) {
				if s.closed.Load() {
					return
				}
				s.dispatch(f)
			}
		}
		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, io.EOF):
			s.log.Info("notification stream ended by server")
		case ctx.Err() != nil || s.closed.Load():
			s.log.Debug("notification stream closed")
		default:
			s.log.Warn("notification stream read failed", slog.String("error", err.Error()))
			s.mu.Lock()
			s.err = fmt.Errorf("read stream: %w", err)
			s.mu.Unlock()
		}
		return
	}
}

func (s *Stream) dispatch(f Frame) {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return
	}
	ids := make([]int, 0, len(s.handlers))
	for id := 0; id < s.nextID; id++ {
		if _, ok := s.handlers[id]; ok {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	metrics.RecordFrame(f.Event, "dispatched")
	for _, id := range ids {
		if h, ok := s.handler(id); ok {
			h(f)
		}
	}
}

// handler returns the handler registered under id unless the stream is closed
// or the handler was removed.
func (s *Stream) handler(id int) (Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, false
	}
	h, ok := s.handlers[id]
	return h, ok
}
