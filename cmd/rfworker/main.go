// rfworker – connects to an rfserver and renders whatever it is sent.
//
// Usage:
//
//	rfworker [-p <port>] [-n <name>] [-v] [--renderer <path>] [address]
//
// address defaults to localhost; flags must come before it. rfworker never
// initiates work: it sends Init once on connect, then serves StartRender
// tasks one at a time for the life of the connection, reconnecting after a
// fixed 2-second delay if the session ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/ianremillard/renderfarm/internal/rflog"
	"github.com/ianremillard/renderfarm/internal/worker"
)

const defaultPort = 4049

func main() {
	fs := flag.NewFlagSet("rfworker", flag.ExitOnError)
	port := fs.Int("p", defaultPort, "TCP port to connect to")
	name := fs.String("n", "", "worker name reported to the server (defaults to hostname)")
	verbose := fs.Bool("v", false, "enable debug-level logging")
	fs.BoolVar(verbose, "verbose", false, "enable debug-level logging")
	rendererPath := fs.String("renderer", "blender", "path to the external renderer executable")
	fs.Parse(os.Args[1:])

	address := "localhost"
	if fs.NArg() > 0 {
		address = fs.Arg(0)
	}

	rflog.Init(*verbose)
	defer rflog.Sync()

	workerName := *name
	if workerName == "" {
		if h, err := os.Hostname(); err == nil {
			workerName = h
		}
		// A failed hostname lookup leaves workerName empty; Init is sent
		// with an empty name rather than failing startup over it.
	}

	workingDir := filepath.Join(os.TempDir(), "render", fmt.Sprintf("worker_%d", os.Getpid()))
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		rflog.L().Fatalw("create working dir", "error", err)
	}

	// Mirroring the renderer's own output is only useful when a human is
	// watching; a non-interactive stderr (log file, CI) just gets noise.
	echoRenderer := *verbose && term.IsTerminal(int(os.Stderr.Fd()))

	cfg := worker.Config{
		Name:         workerName,
		WorkingDir:   workingDir,
		RendererPath: *rendererPath,
		EchoRenderer: echoRenderer,
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		rflog.L().Infow("received signal, shutting down", "signal", sig)
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", address, *port)

	const retryDelay = 2 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rflog.L().Infow("connecting", "addr", addr)
		if err := worker.Run(ctx, addr, cfg); err != nil {
			rflog.L().Warnw("session ended", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}
