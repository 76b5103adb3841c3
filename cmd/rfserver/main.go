// rfserver – the coordination core's scheduler and TCP listener.
//
// Usage:
//
//	rfserver [-p <port>] [-v] [--config <file>] [--metrics-addr <addr>] [address]
//
// address defaults to localhost; flags must come before it. rfserver
// accepts worker connections, drives the scheduler, and (with
// --metrics-addr set) serves Prometheus metrics over HTTP. It has no
// administrative CLI of its own, and nothing in this binary adds projects
// to the scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ianremillard/renderfarm/internal/rfconfig"
	"github.com/ianremillard/renderfarm/internal/rflog"
	"github.com/ianremillard/renderfarm/internal/sched"
	"github.com/ianremillard/renderfarm/internal/session"
)

const defaultPort = 4049

func main() {
	fs := flag.NewFlagSet("rfserver", flag.ExitOnError)
	port := fs.Int("p", defaultPort, "TCP port to listen on")
	verbose := fs.Bool("v", false, "enable debug-level logging")
	fs.BoolVar(verbose, "verbose", false, "enable debug-level logging")
	configPath := fs.String("config", "", "optional YAML config file overlaid onto flag defaults")
	metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	workingRoot := fs.String("working-dir", "", "root directory for per-project bundle/output storage (defaults to a temp dir)")
	fs.Parse(os.Args[1:])

	// Only flags the operator actually passed may override the YAML config;
	// flag.Parse's own defaults ("localhost", defaultPort, ...) are never
	// zero/empty, so naively feeding them all to Overlay would make the
	// YAML file's address/port fields permanently dead.
	var override rfconfig.Config
	if fs.NArg() > 0 {
		override.Address = fs.Arg(0)
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "p":
			override.Port = *port
		case "working-dir":
			override.WorkingRoot = *workingRoot
		case "metrics-addr":
			override.MetricsAddr = *metricsAddr
		}
	})

	fileCfg, err := rfconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rfserver: %v\n", err)
		os.Exit(1)
	}
	cfg := rfconfig.Overlay(fileCfg, override)
	if cfg.Address == "" {
		cfg.Address = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	rflog.Init(*verbose)
	defer rflog.Sync()

	if cfg.WorkingRoot == "" {
		dir, err := os.MkdirTemp("", "renderfarm-server-*")
		if err != nil {
			rflog.L().Fatalw("create working dir", "error", err)
		}
		cfg.WorkingRoot = dir
	}
	if err := os.MkdirAll(cfg.WorkingRoot, 0o755); err != nil {
		rflog.L().Fatalw("prepare working dir", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		rflog.L().Infow("received signal, shutting down", "signal", sig)
		cancel()
	}()

	scheduler := sched.New()
	go scheduler.Run(ctx)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	listenAddr := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		rflog.L().Fatalw("listen failed", "addr", listenAddr, "error", err)
	}
	rflog.L().Infow("rfserver listening", "addr", listenAddr, "working_dir", cfg.WorkingRoot)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				rflog.L().Warnw("accept failed", "error", err)
				continue
			}
		}

		h := &session.Handler{
			Conn:       conn,
			RenderOut:  scheduler.RenderOut(),
			ResultIn:   scheduler.ResultIn(),
			WorkingDir: cfg.WorkingRoot,
		}
		go h.Serve(ctx)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	rflog.L().Infow("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		rflog.L().Errorw("metrics server stopped", "error", err)
	}
}
