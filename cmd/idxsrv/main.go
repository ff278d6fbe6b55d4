package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pyropy/idxshare/core/server"
	"github.com/pyropy/idxshare/lib/logger"
	"go.uber.org/zap"
)

func main() {
	os.Exit(start(os.Stderr))
}

// start builds the logger and runs the server, returning the exit code.
// Errors that happen before a logger exists go to stderr.
func start(stderr io.Writer) int {
	log, err := logger.New("idxsrv")
	if err != nil {
		fmt.Fprintf(stderr, "idxsrv: building logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Errorw("startup", "ERROR", err)
		return 1
	}

	return 0
}

func run(ctx context.Context, log *zap.SugaredLogger) error {
	cfg, err := server.GetConfig()
	if err != nil {
		log.Errorw("startup", "error", "config error")
		return err
	}

	srv, err := server.New(*cfg, log)
	if err != nil {
		log.Errorw("startup", "error", "net listen failed")
		return err
	}

	listenAddr := srv.Addr().String()
	log.Infow("startup", "status", "index server started", "address", listenAddr,
		"idleTimeout", cfg.IdleTimeout, "queueCapacity", cfg.QueueCapacity)
	defer log.Infow("shutdown", "status", "index server stopped", "address", listenAddr)

	return srv.Serve(ctx)
}
