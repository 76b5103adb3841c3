package proto

import (
	"bufio"
	"io"
	"net"
)

// Stream bundles the control-frame reader/writer and the raw byte stream
// they share with a single connection, so that payload bytes are read from
// and written to exactly the same buffers as control frames — a payload
// that begins right after a control frame must not skip bytes already
// buffered by the control-frame scanner.
type Stream struct {
	Reader *FrameReader
	Writer *FrameWriter

	rawR *bufio.Reader
	rawW *bufio.Writer
}

// NewStream wraps conn in buffered control-frame and payload-stream access.
func NewStream(conn net.Conn) *Stream {
	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)
	return &Stream{
		Reader: NewFrameReader(br),
		Writer: NewFrameWriter(bw),
		rawR:   br,
		rawW:   bw,
	}
}

// PayloadReader returns the reader to use for raw payload-stream bytes.
func (s *Stream) PayloadReader() io.Reader { return s.rawR }

// PayloadWriter returns the writer to use for raw payload-stream bytes. The
// caller must Flush() after writing a payload.
func (s *Stream) PayloadWriter() io.Writer { return s.rawW }

// Flush flushes any buffered payload bytes to the connection.
func (s *Stream) Flush() error { return s.rawW.Flush() }
