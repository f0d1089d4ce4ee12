package stream

import (
	"bytes"
	"strings"
)

// Frame is one decoded (event, data) pair
type Frame struct {
	Event string
	Data  string
}

// Decoder turns an arbitrarily chunked text/event-stream body into frames.
// Decoding does not depend on where chunk boundaries fall.
type Decoder struct {
	buf   []byte
	event string
	data  strings.Builder
}

// NewDecoder returns an empty decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the buffer and returns every frame completed by it.
// A trailing partial line stays buffered until a later chunk completes it.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		line = bytes.TrimSuffix(line, []byte{'\r'})

		if f, ok := d.processLine(string(line)); ok {
			frames = append(frames, f)
		}
	}

	// Compact so a long-lived stream does not pin old chunks
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 4*len(d.buf)+4096 {
		d.buf = append([]byte(nil), d.buf...)
	}
	return frames
}

// Pending reports whether a partial line or an undispatched block is buffered
func (d *Decoder) Pending() bool {
	return len(d.buf) > 0 || d.event != "" || d.data.Len() > 0
}

// Reset discards buffered input and the current block
func (d *Decoder) Reset() {
	d.buf = nil
	d.resetBlock()
}

func (d *Decoder) processLine(line string) (Frame, bool) {
	if line == "" {
		f := Frame{Event: d.event, Data: d.data.String()}
		d.resetBlock()
		if f.Event == "" || f.Data == "" {
			return Frame{}, false
		}
		return f, true
	}

	// Comment / keep-alive
	if strings.HasPrefix(line, ":") {
		return Frame{}, false
	}

	field, value, _ := strings.Cut(line, ":")
	switch field {
	case "event":
		d.event = strings.TrimSpace(value)
	case "data":
		d.data.WriteString(strings.TrimSpace(value))
	}
	return Frame{}, false
}

func (d *Decoder) resetBlock() {
	d.event = ""
	d.data.Reset()
}
