// Command ignisd runs the static file server: a fixed pool of
// connection-engine workers accepting HTTP/1.1 connections and serving
// files out of a configured root, with an optional single-page-app
// fallback for client-side routing.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/groove-net/ignis/internal/config"
	"github.com/groove-net/ignis/internal/connhandler"
	"github.com/groove-net/ignis/internal/engine"
	"github.com/groove-net/ignis/internal/logging"
	"github.com/groove-net/ignis/internal/middleware"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ignisd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return err
	}

	log := logging.New(os.Stdout, cfg.LogLevel)

	eng, err := engine.NewEngine(cfg.Engine, log)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	router := middleware.NewRouter(cfg.Root, cfg.SPAFallback, log)
	handler := connhandler.New(router, log)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}

	log.Info().Str("addr", cfg.ListenAddr).Str("root", cfg.Root).Log("ignisd: starting")

	// No graceful shutdown: the specification lists connection draining
	// and signal handling beyond a bare stop as out of scope. SIGINT and
	// SIGTERM cancel the run context, which stops accepting and tears
	// down every worker's event loop; in-flight connections are dropped.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var opts []engine.DispatcherOption
	if rates := cfg.AcceptRates(); rates != nil {
		opts = append(opts, engine.WithAcceptRateLimit(rates))
	}

	return eng.Run(ctx, ln, handler.Handle, opts...)
}
