// Package xfer implements the resumable file-transfer protocol used for
// every project bundle download and every rendered-output upload. It is
// symmetric in role: either side of a connection can act as sender or
// receiver, negotiating offset and compression over the control-frame
// channel before a single bounded payload stream moves in one direction.
package xfer

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/ianremillard/renderfarm/internal/proto"
)

// Failure marks a transfer error as fatal to the session, per spec: any I/O
// or protocol failure during transfer terminates the connection.
type Failure struct {
	Op  string
	Err error
}

func (f *Failure) Error() string { return fmt.Sprintf("transfer %s: %v", f.Op, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

func fail(op string, err error) error { return &Failure{Op: op, Err: err} }

// transferTags is the allow-list for control frames exchanged mid-transfer.
var transferTags = proto.Tags(proto.TagRecvReady, proto.TagSendReady)

// Receive runs the receiver side of the protocol: it opens destPath for
// append-creation, announces its current length and compression support,
// reads the sender's SendReady, and (if length > 0) reads exactly that many
// wire bytes, decompressing them first if negotiated, before appending them
// to destPath.
//
// Receive is idempotent: if destPath already holds the full file, the
// sender will report length 0 and no I/O beyond the initial stat occurs.
func Receive(stream *proto.Stream, destPath string, supportsCompression bool) (uint64, error) {
	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fail("open destination", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fail("stat destination", err)
	}
	offset := uint64(info.Size())

	if err := stream.Writer.Send(proto.RecvReadyMessage(offset, supportsCompression)); err != nil {
		return 0, fail("send RecvReady", err)
	}

	msg, ok, err := stream.Reader.Recv(transferTags)
	if err != nil {
		return 0, fail("read SendReady", err)
	}
	if !ok {
		return 0, fail("read SendReady", io.ErrUnexpectedEOF)
	}
	if err := proto.AssertTag(msg, proto.TagSendReady); err != nil {
		return 0, err
	}
	sr := msg.SendReady

	if sr.Length == 0 {
		return 0, nil
	}

	wire := make([]byte, sr.Length)
	if _, err := io.ReadFull(stream.PayloadReader(), wire); err != nil {
		return 0, fail("read payload", io.ErrUnexpectedEOF)
	}

	plain := wire
	if sr.UseCompression {
		dec, err := zstd.NewReader(bytes.NewReader(wire))
		if err != nil {
			return 0, fail("init decompressor", err)
		}
		plain, err = io.ReadAll(dec)
		dec.Close()
		if err != nil {
			return 0, fail("decompress payload", err)
		}
	}

	n, err := f.Write(plain)
	if err != nil {
		return 0, fail("write destination", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fail("sync destination", err)
	}
	return uint64(n), nil
}

// Send runs the sender side of the protocol: it reads the receiver's
// RecvReady, seeks to the announced offset in srcPath, computes (and, if
// compression is negotiated, produces) the exact on-wire byte count, sends
// SendReady, and — unless the receiver already holds the full file — writes
// that many bytes to the payload stream.
func Send(stream *proto.Stream, srcPath string, supportsCompression bool) (uint64, error) {
	msg, ok, err := stream.Reader.Recv(transferTags)
	if err != nil {
		return 0, fail("read RecvReady", err)
	}
	if !ok {
		return 0, fail("read RecvReady", io.ErrUnexpectedEOF)
	}
	if err := proto.AssertTag(msg, proto.TagRecvReady); err != nil {
		return 0, err
	}
	rr := msg.RecvReady

	f, err := os.Open(srcPath)
	if err != nil {
		return 0, fail("open source", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fail("stat source", err)
	}
	total := uint64(info.Size())
	if rr.Offset > total {
		return 0, fail("seek", fmt.Errorf("offset %d exceeds source length %d", rr.Offset, total))
	}

	if _, err := f.Seek(int64(rr.Offset), io.SeekStart); err != nil {
		return 0, fail("seek source", err)
	}

	plain, err := io.ReadAll(f)
	if err != nil {
		return 0, fail("read source", err)
	}

	useCompression := rr.HasCompression && supportsCompression

	var wire []byte
	if useCompression {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			return 0, fail("init compressor", err)
		}
		if _, err := enc.Write(plain); err != nil {
			enc.Close()
			return 0, fail("compress payload", err)
		}
		if err := enc.Close(); err != nil {
			return 0, fail("compress payload", err)
		}
		wire = buf.Bytes()
	} else {
		wire = plain
	}

	if err := stream.Writer.Send(proto.SendReadyMessage(uint64(len(wire)), useCompression)); err != nil {
		return 0, fail("send SendReady", err)
	}

	if len(wire) == 0 {
		return 0, nil
	}

	if _, err := stream.PayloadWriter().Write(wire); err != nil {
		return 0, fail("write payload", err)
	}
	if err := stream.Flush(); err != nil {
		return 0, fail("flush payload", err)
	}
	return uint64(len(plain)), nil
}
