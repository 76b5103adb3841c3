package xfer

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ianremillard/renderfarm/internal/proto"
)

// pipeStreams returns two Streams wired to opposite ends of an in-memory
// connection, the same shared-buffer setup a real TCP connection gets, plus
// their underlying conns so a test can simulate a session-terminating close
// after a transfer failure.
func pipeStreams(t *testing.T) (a, b *proto.Stream, connA, connB net.Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	return proto.NewStream(c1), proto.NewStream(c2), c1, c2
}

func TestSendReceiveFullFile(t *testing.T) {
	sender, receiver, _, _ := pipeStreams(t)

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "src.bin")
	content := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	destDir := t.TempDir()
	dest := filepath.Join(destDir, "dest.bin")

	errCh := make(chan error, 1)
	go func() {
		_, err := Send(sender, src, true)
		errCh <- err
	}()

	n, err := Receive(receiver, dest, true)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, uint64(len(content)), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestReceiveResumesFromExistingOffset(t *testing.T) {
	sender, receiver, _, _ := pipeStreams(t)

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "src.bin")
	content := []byte("0123456789abcdefghij")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	destDir := t.TempDir()
	dest := filepath.Join(destDir, "dest.bin")
	require.NoError(t, os.WriteFile(dest, content[:10], 0o644))

	errCh := make(chan error, 1)
	go func() {
		_, err := Send(sender, src, true)
		errCh <- err
	}()

	n, err := Receive(receiver, dest, true)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, uint64(10), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestReceiveIsNoopWhenAlreadyComplete(t *testing.T) {
	sender, receiver, _, _ := pipeStreams(t)

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "src.bin")
	content := []byte("already have all of this")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	destDir := t.TempDir()
	dest := filepath.Join(destDir, "dest.bin")
	require.NoError(t, os.WriteFile(dest, content, 0o644))

	errCh := make(chan error, 1)
	go func() {
		_, err := Send(sender, src, true)
		errCh <- err
	}()

	n, err := Receive(receiver, dest, true)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, uint64(0), n)
}

func TestSendRejectsOffsetPastEndOfFile(t *testing.T) {
	sender, receiver, connA, _ := pipeStreams(t)

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "src.bin")
	require.NoError(t, os.WriteFile(src, []byte("short"), 0o644))

	errCh := make(chan error, 1)
	go func() {
		_, err := Send(sender, src, true)
		errCh <- err
		// A real caller closes the session on a transfer failure; do the
		// same here so the receiver's pending read unblocks instead of
		// hanging on a SendReady that will never arrive.
		connA.Close()
	}()

	destDir := t.TempDir()
	dest := filepath.Join(destDir, "dest.bin")
	require.NoError(t, os.WriteFile(dest, []byte("far longer than the source file"), 0o644))

	_, err := Receive(receiver, dest, true)
	require.Error(t, err)
	require.Error(t, <-errCh)
}

func TestCompressionNegotiationFallsBackWhenUnsupported(t *testing.T) {
	sender, receiver, _, _ := pipeStreams(t)

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "src.bin")
	content := []byte("data that would normally be compressed on the wire")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	destDir := t.TempDir()
	dest := filepath.Join(destDir, "dest.bin")

	errCh := make(chan error, 1)
	go func() {
		// Sender supports compression, but the receiver below advertises
		// supportsCompression=false, so no compression should be used.
		_, err := Send(sender, src, true)
		errCh <- err
	}()

	n, err := Receive(receiver, dest, false)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, uint64(len(content)), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, content, got)
}
