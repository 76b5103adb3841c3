// Package worker implements the worker-side session loop: connect, send
// Init, then serve StartRender tasks strictly sequentially for the
// lifetime of the connection.
package worker

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/ianremillard/renderfarm/internal/proto"
	"github.com/ianremillard/renderfarm/internal/render"
	"github.com/ianremillard/renderfarm/internal/rflog"
	"github.com/ianremillard/renderfarm/internal/rfmetrics"
	"github.com/ianremillard/renderfarm/internal/session"
	"github.com/ianremillard/renderfarm/internal/xfer"
)

var startRenderTags = proto.Tags(proto.TagStartRender)

// Config holds the parameters a worker session needs.
type Config struct {
	Name         string // defaults to OS hostname; empty if hostname lookup failed
	WorkingDir   string // this process's scratch directory
	RendererPath string
	EchoRenderer bool // mirror the renderer subprocess's own stdout/stderr to ours
}

// Run connects to addr and serves tasks until the connection closes or ctx
// is canceled. It returns nil on a clean peer close, or an error for any
// fatal I/O or protocol failure.
func Run(ctx context.Context, addr string, cfg Config) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	stream := proto.NewStream(conn)

	if err := stream.Writer.Send(proto.InitMessage(cfg.Name)); err != nil {
		return fmt.Errorf("send Init: %w", err)
	}
	rflog.L().Infow("connected to server", "addr", addr, "name", cfg.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, ok, err := stream.Reader.Recv(startRenderTags)
		if err != nil {
			return fmt.Errorf("read StartRender: %w", err)
		}
		if !ok {
			rflog.L().Infow("server closed connection", "addr", addr)
			return nil
		}
		if aerr := proto.AssertTag(msg, proto.TagStartRender); aerr != nil {
			return aerr
		}

		if err := serveTask(ctx, stream, cfg, msg.StartRender.RenderTask); err != nil {
			return err
		}
	}
}

// serveTask runs one task to completion: bundle download, render, result,
// optional output upload. A returned error is fatal to the session (I/O or
// protocol failure); a render failure is reported on the wire and is not an
// error here.
func serveTask(ctx context.Context, stream *proto.Stream, cfg Config, task proto.RenderTask) error {
	projectDir := filepath.Join(cfg.WorkingDir, task.ProjectUUID.String())
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	bundlePath := render.BundlePath(projectDir, session.BundleExt)
	received, err := xfer.Receive(stream, bundlePath, true)
	if err != nil {
		return fmt.Errorf("bundle transfer: %w", err)
	}
	rfmetrics.TransferBytes.WithLabelValues("download").Add(float64(received))

	outputTemplate := render.OutputTemplate(projectDir, task.OutputExt)
	ok, err := render.Invoke(ctx, cfg.RendererPath, bundlePath, task.Frame, outputTemplate, cfg.EchoRenderer)
	if err != nil {
		return fmt.Errorf("invoke renderer: %w", err)
	}

	if !ok {
		rflog.L().Warnw("render failed", "project_uuid", task.ProjectUUID, "frame", task.Frame)
		return stream.Writer.Send(proto.RenderResultMessage(proto.ResultErr))
	}

	if err := stream.Writer.Send(proto.RenderResultMessage(proto.ResultOk)); err != nil {
		return fmt.Errorf("send RenderResult: %w", err)
	}

	outputPath := render.ResolvedOutputPath(projectDir, task.Frame, task.OutputExt)
	sent, err := xfer.Send(stream, outputPath, true)
	if err != nil {
		return fmt.Errorf("output transfer: %w", err)
	}
	rfmetrics.TransferBytes.WithLabelValues("upload").Add(float64(sent))

	if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
		rflog.L().Warnw("failed to remove local output after upload", "path", outputPath, "error", err)
	}

	return nil
}
