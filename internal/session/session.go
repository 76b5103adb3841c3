// Package session implements the server-side per-worker connection
// handler: the awaiting_init → ready → dispatching(t) state machine of the
// coordination core's spec, driving the wire codec and transfer protocol
// against exactly one worker for the lifetime of its TCP connection.
package session

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ianremillard/renderfarm/internal/proto"
	"github.com/ianremillard/renderfarm/internal/rflog"
	"github.com/ianremillard/renderfarm/internal/rfmetrics"
	"github.com/ianremillard/renderfarm/internal/sched"
	"github.com/ianremillard/renderfarm/internal/xfer"
)

// BundleExt is the fixed extension used for stored project bundle files.
// The bundle is an opaque scene file handed to the renderer as-is; its
// extension carries no semantic meaning to this module.
const BundleExt = "bundle"

var initTags = proto.Tags(proto.TagInit)
var resultTags = proto.Tags(proto.TagRenderResult)

// Handler drives one worker's connection against the scheduler.
type Handler struct {
	Conn       net.Conn
	RenderOut  <-chan proto.RenderTask
	ResultIn   chan<- sched.Result
	WorkingDir string // server-side working directory, partitioned by project UUID
}

// Serve runs the connection's state machine until the worker disconnects,
// a protocol violation occurs, ctx is canceled, or an I/O error terminates
// the session. It always reports exactly one result for any task claimed
// from RenderOut before returning.
func (h *Handler) Serve(ctx context.Context) {
	defer h.Conn.Close()

	stream := proto.NewStream(h.Conn)
	peer := h.Conn.RemoteAddr().String()

	msg, ok, err := stream.Reader.Recv(initTags)
	if err != nil {
		rflog.L().Warnw("session init failed", "peer", peer, "error", err)
		return
	}
	if !ok {
		rflog.L().Debugw("session closed before init", "peer", peer)
		return
	}
	if aerr := proto.AssertTag(msg, proto.TagInit); aerr != nil {
		rflog.L().Warnw("session init protocol violation", "peer", peer, "error", aerr)
		return
	}
	name := msg.Init.Name
	if name == "" {
		name = peer
	}
	rflog.L().Infow("worker connected", "peer", peer, "name", name)

	rfmetrics.ActiveSessions.Inc()
	defer rfmetrics.ActiveSessions.Dec()
	defer rflog.L().Infow("worker disconnected", "peer", peer, "name", name)

	for {
		var task proto.RenderTask
		select {
		case <-ctx.Done():
			return
		case t, chOK := <-h.RenderOut:
			if !chOK {
				return
			}
			task = t
		}

		if !h.dispatch(ctx, stream, peer, task) {
			return
		}
	}
}

// dispatch drives one claimed task to completion. It returns false when the
// session must terminate (I/O error, protocol violation, or an already
// reported Err from an unexpected message), true to keep serving this
// connection.
func (h *Handler) dispatch(ctx context.Context, stream *proto.Stream, peer string, task proto.RenderTask) bool {
	terminal := false
	reported := false
	report := func(result proto.RenderResult) {
		if reported {
			return
		}
		reported = true
		h.ResultIn <- sched.Result{Task: task, Result: result}
	}
	defer func() {
		// Critical contract: every claimed task produces exactly one result,
		// even when the session dies mid-flight.
		if !reported {
			report(proto.ResultErr)
		}
	}()

	if err := stream.Writer.Send(proto.StartRenderMessage(task)); err != nil {
		rflog.L().Warnw("send StartRender failed", "peer", peer, "frame", task.Frame, "error", err)
		return false
	}

	bundlePath := filepath.Join(h.WorkingDir, task.ProjectUUID.String(), "project."+BundleExt)
	sent, err := xfer.Send(stream, bundlePath, true)
	if err != nil {
		rflog.L().Warnw("bundle transfer failed", "peer", peer, "frame", task.Frame, "error", err)
		return false
	}
	rfmetrics.TransferBytes.WithLabelValues("download").Add(float64(sent))

	msg, ok, err := stream.Reader.Recv(resultTags)
	if err != nil {
		rflog.L().Warnw("read RenderResult failed", "peer", peer, "frame", task.Frame, "error", err)
		return false
	}
	if !ok {
		rflog.L().Warnw("connection closed mid-task", "peer", peer, "frame", task.Frame)
		return false
	}
	if aerr := proto.AssertTag(msg, proto.TagRenderResult); aerr != nil {
		rflog.L().Warnw("protocol violation after StartRender", "peer", peer, "frame", task.Frame, "error", aerr)
		return false
	}

	switch msg.RenderResult.Result {
	case proto.ResultErr:
		report(proto.ResultErr)
		return true
	case proto.ResultOk:
		destDir, err := EnsureProjectDir(h.WorkingDir, task.ProjectUUID)
		if err != nil {
			rflog.L().Warnw("create project dir failed", "peer", peer, "frame", task.Frame, "error", err)
			return false
		}
		destPath := filepath.Join(destDir, fmt.Sprintf("%04d.%s", task.Frame, task.OutputExt))
		received, err := xfer.Receive(stream, destPath, true)
		if err != nil {
			rflog.L().Warnw("output transfer failed", "peer", peer, "frame", task.Frame, "error", err)
			return false
		}
		rfmetrics.TransferBytes.WithLabelValues("upload").Add(float64(received))
		report(proto.ResultOk)
		return true
	default:
		return false
	}
}

// EnsureProjectDir creates the per-project bundle/output directory under
// root if it does not already exist. dispatch calls this before writing a
// rendered output into it. Nothing in this package writes the bundle: it
// must already be at <root>/<uuid>/project.bundle when a task is dispatched.
func EnsureProjectDir(root string, projectUUID uuid.UUID) (string, error) {
	dir := filepath.Join(root, projectUUID.String())
	return dir, os.MkdirAll(dir, 0o755)
}
