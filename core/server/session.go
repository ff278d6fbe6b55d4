package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/pyropy/idxshare/core/registry"
	"github.com/pyropy/idxshare/rpc/message"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Error texts sent to clients.
const (
	msgInvalidMessage      = "Invalid message"
	msgExpectAuthenticate  = "Expecting AuthenticateRequest"
	msgExpectRequest       = "Expecting a request message"
	msgFailedSharingSecret = "Failed sharing secret"
	msgFailedSecret        = "Failed secret"
	msgNotFound            = "Not found"
)

var (
	errAuthFailed = errors.New("authentication failed")
	errPeerClosed = errors.New("peer closed connection")
	errProtocol   = errors.New("protocol violation")
)

// session is one connection's exchange: Welcome, authentication, then a
// single request and its reply.
type session struct {
	conn     net.Conn
	reader   *message.Reader
	registry *registry.Registry
	welcome  string
	secret   string
	log      *zap.SugaredLogger
}

func newSession(id uuid.UUID, conn net.Conn, d *Dispatcher) *session {
	return &session{
		conn:     conn,
		reader:   message.NewReader(conn),
		registry: d.registry,
		welcome:  d.welcome,
		secret:   d.secret,
		log:      d.log.With("conn", id.String(), "remote", conn.RemoteAddr().String()),
	}
}

func (s *session) run() error {
	if err := s.send(&message.Welcome{Msg: s.welcome}); err != nil {
		return err
	}

	m, err := s.receive()
	if err != nil {
		return err
	}

	auth, ok := m.(*message.AuthenticateRequest)
	if !ok {
		return s.reject(msgExpectAuthenticate, fmt.Errorf("%w: got %s before authenticating", errProtocol, m.Kind()))
	}

	if subtle.ConstantTimeCompare([]byte(auth.Secret), []byte(s.secret)) != 1 {
		if err := s.send(&message.AuthenticateReply{Success: false}); err != nil {
			return err
		}
		return errAuthFailed
	}

	if err := s.send(&message.AuthenticateReply{Success: true}); err != nil {
		return err
	}

	m, err = s.receive()
	if err != nil {
		return err
	}

	if !message.IsRequest(m) {
		return s.reject(msgExpectRequest, fmt.Errorf("%w: got %s instead of a request", errProtocol, m.Kind()))
	}

	reply, err := s.process(m)
	if err != nil {
		return err
	}

	return s.send(reply)
}

func (s *session) process(m message.Message) (message.Message, error) {
	switch req := m.(type) {
	case *message.ShareRequest:
		return s.share(req)
	case *message.DropShareRequest:
		return s.drop(req)
	case *message.SearchRequest:
		return s.search(req), nil
	case *message.LookupRequest:
		return s.lookup(req), nil
	}

	return nil, s.reject(msgExpectRequest, fmt.Errorf("%w: unhandled %s", errProtocol, m.Kind()))
}

func (s *session) share(req *message.ShareRequest) (message.Message, error) {
	if err := req.FileDescr.Validate(); err != nil {
		return nil, s.reject(msgInvalidMessage, err)
	}

	ip, err := s.remoteIP()
	if err != nil {
		return nil, err
	}

	hash := req.FileDescr.FileHash()
	res := s.registry.Share(ip, req.Port, req.FileDescr, req.Filename, req.SharingSecret)
	s.log.Infow("share", "status", res.String(), "filename", req.Filename, "md5", hash, "port", req.Port)

	if res == registry.SecretMismatch {
		return &message.ErrorMsg{Msg: msgFailedSharingSecret}, nil
	}

	return &message.ShareReply{NumSharers: len(s.registry.Lookup(req.Filename, hash))}, nil
}

func (s *session) drop(req *message.DropShareRequest) (message.Message, error) {
	ip, err := s.remoteIP()
	if err != nil {
		return nil, err
	}

	res := s.registry.Drop(ip, req.Port, req.Filename, req.FileMD5, req.SharingSecret)
	s.log.Infow("drop", "status", res.String(), "filename", req.Filename, "md5", req.FileMD5, "port", req.Port)

	switch res {
	case registry.SecretMismatch:
		return &message.ErrorMsg{Msg: msgFailedSecret}, nil
	case registry.NotFound:
		return &message.ErrorMsg{Msg: msgNotFound}, nil
	}

	return &message.DropShareReply{Success: true}, nil
}

func (s *session) search(req *message.SearchRequest) message.Message {
	keywords := make([]string, len(req.Keywords))
	for i, kw := range req.Keywords {
		keywords[i] = strings.ToLower(kw)
	}

	hits := s.registry.Search(keywords, req.MaxHits)
	seedCounts := make([]int, len(hits))
	for i, hit := range hits {
		seedCounts[i] = len(s.registry.Lookup(hit.Filename, hit.FileDescr.FileHash()))
	}

	s.log.Infow("search", "status", "done", "keywords", keywords, "maxHits", req.MaxHits, "hits", len(hits))

	return &message.SearchReply{Hits: hits, SeedCounts: seedCounts}
}

func (s *session) lookup(req *message.LookupRequest) message.Message {
	hits := s.registry.Lookup(req.Filename, req.FileMD5)
	s.log.Infow("lookup", "status", "done", "filename", req.Filename, "md5", req.FileMD5, "hits", len(hits))

	return &message.LookupReply{Hits: hits}
}

// receive reads the next message. A line that does not decode is answered
// with an Error before the session gives up.
func (s *session) receive() (message.Message, error) {
	m, err := s.reader.Read()
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, message.ErrSerialization):
		return nil, s.reject(msgInvalidMessage, err)
	case errors.Is(err, io.EOF):
		return nil, errPeerClosed
	}

	return nil, fmt.Errorf("reading: %w", err)
}

func (s *session) send(m message.Message) error {
	return message.Write(s.conn, m)
}

// reject sends an Error with text and returns cause, or the send failure.
func (s *session) reject(text string, cause error) error {
	if err := s.send(&message.ErrorMsg{Msg: text}); err != nil {
		return multierr.Append(cause, err)
	}

	return cause
}

func (s *session) remoteIP() (string, error) {
	host, _, err := net.SplitHostPort(s.conn.RemoteAddr().String())
	if err != nil {
		return "", fmt.Errorf("remote address: %w", err)
	}

	return host, nil
}
