package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

const acceptRetryDelay = 50 * time.Millisecond

// Acceptor hands accepted connections to the dispatcher queue. It never
// waits for the dispatcher: when the queue is full the new connection is
// closed straight away.
type Acceptor struct {
	listener    net.Listener
	queue       chan<- net.Conn
	idleTimeout time.Duration
	log         *zap.SugaredLogger
}

func NewAcceptor(listener net.Listener, queue chan<- net.Conn, idleTimeout time.Duration, log *zap.SugaredLogger) *Acceptor {
	return &Acceptor{
		listener:    listener,
		queue:       queue,
		idleTimeout: idleTimeout,
		log:         log,
	}
}

// Run accepts until the listener is closed. Closing the listener after ctx
// is cancelled is the normal way to stop it.
func (a *Acceptor) Run(ctx context.Context) error {
	a.log.Infow("acceptor", "status", "accepting connections", "address", a.listener.Addr().String())
	defer a.log.Infow("acceptor", "status", "stopped", "address", a.listener.Addr().String())

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}

			a.log.Warnw("acceptor", "status", "accept failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		a.offer(newIdleConn(conn, a.idleTimeout))
	}
}

func (a *Acceptor) offer(conn net.Conn) {
	select {
	case a.queue <- conn:
		a.log.Debugw("acceptor", "status", "queued connection", "remote", conn.RemoteAddr().String())
	default:
		a.log.Warnw("acceptor", "status", "queue full, dropping connection", "remote", conn.RemoteAddr().String())
		if err := conn.Close(); err != nil {
			a.log.Debugw("acceptor", "status", "close failed", "error", err)
		}
	}
}
