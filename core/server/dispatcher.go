package server

import (
	"context"
	"net"

	"github.com/google/uuid"
	"github.com/pyropy/idxshare/core/registry"
	"go.uber.org/zap"
)

// Dispatcher serves queued connections one at a time. It is the only
// goroutine touching the registry.
type Dispatcher struct {
	queue    <-chan net.Conn
	registry *registry.Registry
	welcome  string
	secret   string
	log      *zap.SugaredLogger
}

func NewDispatcher(queue <-chan net.Conn, reg *registry.Registry, welcome, secret string, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		registry: reg,
		welcome:  welcome,
		secret:   secret,
		log:      log,
	}
}

// Run serves connections until ctx is cancelled. A session already in
// progress is finished first.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Infow("dispatcher", "status", "started")
	defer d.log.Infow("dispatcher", "status", "stopped", "sharers", d.registry.Len())

	for {
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case conn := <-d.queue:
			d.serve(conn)
		}
	}
}

func (d *Dispatcher) serve(conn net.Conn) {
	s := newSession(uuid.New(), conn, d)
	defer func() {
		if err := conn.Close(); err != nil {
			s.log.Debugw("session", "status", "close failed", "error", err)
		}
	}()

	s.log.Infow("session", "status", "started")
	if err := s.run(); err != nil {
		s.log.Warnw("session", "status", "ended with error", "error", err)
		return
	}
	s.log.Infow("session", "status", "finished")
}

// drainQueue closes every connection still waiting in queue.
func drainQueue(queue <-chan net.Conn, log *zap.SugaredLogger) {
	for {
		select {
		case conn := <-queue:
			log.Infow("shutdown", "status", "closing queued connection", "remote", conn.RemoteAddr().String())
			_ = conn.Close()
		default:
			return
		}
	}
}
