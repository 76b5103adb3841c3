// Package proto defines the wire codec shared by the server and the
// worker: newline-terminated JSON control frames, plus the raw payload
// stream a control frame can announce.
//
// Two kinds of frame share one byte stream:
//
//   - a control frame: one UTF-8 text line terminated by '\n', holding the
//     JSON encoding of a tagged union (ServerMessage or WorkerMessage
//     depending on direction). Producers flush after every frame; consumers
//     read exactly one line per frame.
//   - a payload stream: raw bytes, announced by a prior control frame that
//     carries an exact byte length. There is no framing within the payload.
//
// At any moment the underlying connection is in either control mode or
// payload mode, as directed by the most recently sent control frame.
package proto

import (
	"bufio"
	"encoding/json"
	"fmt"
)

// maxLineBytes bounds a single control frame line. Tagged payloads in this
// protocol are small (UUIDs, frame numbers, short names); 1 MiB is a generous
// ceiling that still catches a runaway or malicious peer.
const maxLineBytes = 1 << 20

// FrameReader reads newline-terminated control frames from a connection.
type FrameReader struct {
	s *bufio.Scanner
}

// NewFrameReader wraps r for reading control frames.
func NewFrameReader(r *bufio.Reader) *FrameReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), maxLineBytes)
	return &FrameReader{s: s}
}

// ReadLine reads one control frame's raw JSON line. It returns ok == false
// with a nil error when the peer closed the connection cleanly between
// frames.
func (fr *FrameReader) ReadLine() ([]byte, bool, error) {
	if !fr.s.Scan() {
		if err := fr.s.Err(); err != nil {
			return nil, false, fmt.Errorf("read control frame: %w", err)
		}
		return nil, false, nil
	}
	line := fr.s.Bytes()
	out := make([]byte, len(line))
	copy(out, line)
	return out, true, nil
}

// FrameWriter writes newline-terminated control frames to a connection.
type FrameWriter struct {
	w *bufio.Writer
}

// NewFrameWriter wraps w for writing control frames.
func NewFrameWriter(w *bufio.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteValue marshals v to compact JSON, appends '\n', writes it, and
// flushes. Every control frame must be flushed immediately: the peer may be
// blocked reading it before the next payload stream begins.
func (fw *FrameWriter) WriteValue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode control frame: %w", err)
	}
	data = append(data, '\n')
	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("write control frame: %w", err)
	}
	return fw.w.Flush()
}

// ProtocolViolation signals a frame that parsed as JSON but did not carry a
// recognized tag for the current direction, or a line that was not valid
// JSON at all. Per spec it terminates the session.
type ProtocolViolation struct {
	Detail string
}

func (e *ProtocolViolation) Error() string {
	return "protocol violation: " + e.Detail
}
