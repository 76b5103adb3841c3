package proto

import "fmt"

// Send encodes and writes m as a single control frame, flushing immediately.
func (fw *FrameWriter) Send(m Message) error {
	wire, err := Encode(m)
	if err != nil {
		return err
	}
	return fw.WriteValue(wire)
}

// Recv reads one control frame and decodes it, restricting the accepted tags
// to allowed. ok is false (with a nil error) on a clean peer disconnect
// between frames.
func (fr *FrameReader) Recv(allowed map[Tag]bool) (Message, bool, error) {
	line, ok, err := fr.ReadLine()
	if err != nil || !ok {
		return Message{}, ok, err
	}
	msg, err := Decode(line, allowed)
	if err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}

// Tags is a small builder for allow-lists passed to Recv.
func Tags(tags ...Tag) map[Tag]bool {
	m := make(map[Tag]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}

// AssertTag returns a ProtocolViolation if msg is not tagged want.
func AssertTag(msg Message, want Tag) error {
	if msg.Tag != want {
		return &ProtocolViolation{Detail: fmt.Sprintf("expected %q, got %q", want, msg.Tag)}
	}
	return nil
}
