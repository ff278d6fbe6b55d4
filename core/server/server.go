// Package server implements the index server: an acceptor goroutine that
// queues incoming connections and a single dispatcher goroutine that runs
// each connection's session against the registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pyropy/idxshare/core/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	Cfg Config

	listener   net.Listener
	queue      chan net.Conn
	acceptor   *Acceptor
	dispatcher *Dispatcher
	log        *zap.SugaredLogger
}

// New binds the listen address so that Addr is known before Serve runs.
func New(cfg Config, log *zap.SugaredLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	queue := make(chan net.Conn, cfg.QueueCapacity)

	return &Server{
		Cfg:        cfg,
		listener:   l,
		queue:      queue,
		acceptor:   NewAcceptor(l, queue, cfg.IdleTimeout, log),
		dispatcher: NewDispatcher(queue, registry.New(), cfg.Welcome, cfg.Secret, log),
		log:        log,
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs until ctx is cancelled or the acceptor fails. Connections
// still queued at that point are closed unserved.
func (s *Server) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		s.log.Infow("shutdown", "status", "closing listener", "address", s.Addr().String())
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return s.acceptor.Run(ctx)
	})

	g.Go(func() error {
		return s.dispatcher.Run(ctx)
	})

	err := g.Wait()
	drainQueue(s.queue, s.log)

	return err
}
