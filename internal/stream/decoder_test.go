package stream

import (
	"reflect"
	"testing"
)

const sampleStream = ": keep-alive\n" +
	"event: connected\n" +
	"data: {\"ok\":true}\n" +
	"\n" +
	"event: unread-count\r\n" +
	"data: {\"count\":3}\r\n" +
	"\r\n" +
	"data: {\"orphan\":true}\n" +
	"\n" +
	"event: notification\n" +
	"id: 17\n" +
	"data: {\"id\":17,\n" +
	"data: \"title\":\"Interview\"}\n" +
	"\n" +
	"event: heartbeat\n" +
	"\n"

func TestDecoder_Frames(t *testing.T) {
	got := NewDecoder().Feed([]byte(sampleStream))
	want := []Frame{
		{Event: "connected", Data: `{"ok":true}`},
		{Event: "unread-count", Data: `{"count":3}`},
		{Event: "notification", Data: `{"id":17,"title":"Interview"}`},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("frames mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestDecoder_ChunkBoundaryIndependence(t *testing.T) {
	whole := NewDecoder().Feed([]byte(sampleStream))

	tests := []struct {
		name string
		size int
	}{
		{"1 byte", 1},
		{"2 bytes", 2},
		{"7 bytes", 7},
		{"64 bytes", 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder()
			var got []Frame
			data := []byte(sampleStream)
			for len(data) > 0 {
				n := tt.size
				if n > len(data) {
					n = len(data)
				}
				got = append(got, dec.Feed(data[:n])...)
				data = data[n:]
			}
			if !reflect.DeepEqual(got, whole) {
				t.Errorf("chunked decode differs\n got: %+v\nwant: %+v", got, whole)
			}
		})
	}
}

func TestDecoder_SplitDataLine(t *testing.T) {
	dec := NewDecoder()

	if f := dec.Feed([]byte("event: unread-count\n")); len(f) != 0 {
		t.Fatalf("unexpected frames after first chunk: %+v", f)
	}
	if f := dec.Feed([]byte(`data: {"coun`)); len(f) != 0 {
		t.Fatalf("unexpected frames after second chunk: %+v", f)
	}
	if !dec.Pending() {
		t.Error("expected partial line to be pending")
	}

	frames := dec.Feed([]byte("t\":3}\n\n"))
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame, got %+v", frames)
	}
	if frames[0].Event != "unread-count" || frames[0].Data != `{"count":3}` {
		t.Errorf("unexpected frame %+v", frames[0])
	}
	if dec.Pending() {
		t.Error("expected decoder to be drained")
	}
}

func TestDecoder_ResetsAfterBlankLine(t *testing.T) {
	dec := NewDecoder()
	frames := dec.Feed([]byte("event: notification\n\ndata: {}\n\n"))
	if len(frames) != 0 {
		t.Errorf("event and data from different blocks must not combine: %+v", frames)
	}
}

func TestDecoder_TrimsValues(t *testing.T) {
	frames := NewDecoder().Feed([]byte("event:   connected  \ndata:  {}  \n\n"))
	if len(frames) != 1 || frames[0].Event != "connected" || frames[0].Data != "{}" {
		t.Errorf("unexpected frames %+v", frames)
	}
}

func TestDecoder_Reset(t *testing.T) {
	dec := NewDecoder()
	dec.Feed([]byte("event: connected\ndata: {"))
	dec.Reset()
	if dec.Pending() {
		t.Fatal("expected nothing pending after reset")
	}
	if frames := dec.Feed([]byte("}\n\n")); len(frames) != 0 {
		t.Errorf("reset decoder produced frames: %+v", frames)
	}
}
