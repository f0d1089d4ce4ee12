package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/devilmonastery/jobboard/internal/client"
	"github.com/devilmonastery/jobboard/internal/testutil/fakeportal"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *frameRecorder) handle(f Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *frameRecorder) snapshot() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

func waitDone(t *testing.T, s *Stream) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func TestOpen_DeliversFramesAcrossChunks(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()
	access, _ := portal.IssueTokens()

	portal.SetStream(http.StatusOK, false,
		"event: connected\ndata: {}\n\n",
		"event: unread-count\n",
		`data: {"coun`,
		"t\":3}\n\n",
	)

	rec := &frameRecorder{}
	s, err := Open(context.Background(), portal.APIURL()+"/notifications/stream", access, WithHandler(rec.handle))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitDone(t, s)

	frames := rec.snapshot()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %+v", frames)
	}
	if frames[1].Event != "unread-count" || frames[1].Data != `{"count":3}` {
		t.Errorf("unexpected frame %+v", frames[1])
	}
	if s.Err() != nil {
		t.Errorf("server EOF should end the stream cleanly, got %v", s.Err())
	}
	if s.State() != Disconnected {
		t.Errorf("expected Disconnected, got %s", s.State())
	}
	if got := portal.AuthHeaders(); len(got) != 1 || got[0] != "Bearer "+access {
		t.Errorf("expected bearer header, got %v", got)
	}
}

func TestOpen_Unauthorized(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	_, err := Open(context.Background(), portal.APIURL()+"/notifications/stream", "bogus")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestOpen_ServerError(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()
	access, _ := portal.IssueTokens()
	portal.SetStream(http.StatusServiceUnavailable, false)

	_, err := Open(context.Background(), portal.APIURL()+"/notifications/stream", access)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 StatusError, got %v", err)
	}
	if errors.Is(err, client.ErrUnauthorized) {
		t.Error("503 must not match ErrUnauthorized")
	}
}

func TestStream_CloseStopsDelivery(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()
	access, _ := portal.IssueTokens()
	portal.SetStream(http.StatusOK, true, "event: connected\ndata: {}\n\n")

	rec := &frameRecorder{}
	s, err := Open(context.Background(), portal.APIURL()+"/notifications/stream", access, WithHandler(rec.handle))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(rec.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.State() != Connected {
		t.Errorf("expected Connected while open, got %s", s.State())
	}

	s.Close()
	s.Close()
	waitDone(t, s)

	if s.Err() != nil {
		t.Errorf("Close should not surface an error, got %v", s.Err())
	}
	if s.State() != Disconnected {
		t.Errorf("expected Disconnected after Close, got %s", s.State())
	}
}

func TestStream_ContextCancel(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()
	access, _ := portal.IssueTokens()
	portal.SetStream(http.StatusOK, true)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, portal.APIURL()+"/notifications/stream", access)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cancel()
	waitDone(t, s)
	if s.Err() != nil {
		t.Errorf("cancellation should not surface an error, got %v", s.Err())
	}
}

func TestStream_OnEventUnsubscribe(t *testing.T) {
	s := &Stream{handlers: make(map[int]Handler)}

	var a, b int
	unsubA := s.OnEvent(func(Frame) { a++ })
	s.OnEvent(func(Frame) { b++ })

	s.dispatch(Frame{Event: "connected", Data: "{}"})
	unsubA()
	s.dispatch(Frame{Event: "connected", Data: "{}"})

	if a != 1 || b != 2 {
		t.Errorf("expected a=1 b=2, got a=%d b=%d", a, b)
	}
}

func TestStream_CloseFromHandlerStopsDispatch(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()
	access, _ := portal.IssueTokens()
	portal.SetStream(http.StatusOK, true,
		"event: connected\ndata: {}\n\nevent: unread-count\ndata: {\"count\":1}\n\nevent: unread-count\ndata: {\"count\":2}\n\n")

	var s *Stream
	opened := make(chan struct{})
	closer := &frameRecorder{}
	after := &frameRecorder{}
	handlers := []Option{
		WithHandler(func(f Frame) {
			<-opened
			closer.handle(f)
			s.Close()
		}),
		WithHandler(after.handle),
	}

	var err error
	s, err = Open(context.Background(), portal.APIURL()+"/notifications/stream", access, handlers...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	close(opened)
	waitDone(t, s)

	if got := len(closer.snapshot()); got != 1 {
		t.Errorf("closing handler saw %d frames, want 1", got)
	}
	if got := len(after.snapshot()); got != 0 {
		t.Errorf("handler registered after the closing one saw %d frames, want 0", got)
	}
	if s.Err() != nil {
		t.Errorf("Close should not surface an error, got %v", s.Err())
	}
}
