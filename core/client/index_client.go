package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pyropy/idxshare/core/model"
	"github.com/pyropy/idxshare/rpc/message"
)

const DefaultTimeout = 5 * time.Second

var (
	ErrAuthFailed      = errors.New("index server rejected the secret")
	ErrUnexpectedReply = errors.New("unexpected reply from index server")
	ErrServer          = errors.New("index server error")
)

// ServerError carries the text of an Error message sent by the index server.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", ErrServer, e.Msg)
}

func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

// SearchRecord is one search hit together with its number of sharers.
type SearchRecord struct {
	Hit        *model.IndexElement
	NumSharers int
}

// IndexClient talks to one index server. Every call opens its own
// connection, since the server answers a single request per connection.
type IndexClient struct {
	Addr    string
	Secret  string
	Timeout time.Duration
}

func NewIndexClient(addr, secret string) *IndexClient {
	return &IndexClient{
		Addr:    addr,
		Secret:  secret,
		Timeout: DefaultTimeout,
	}
}

// Share registers descr under filename and returns the number of sharers
// of that file, this one included.
func (c *IndexClient) Share(ctx context.Context, descr *model.ChunkDescriptor, filename, sharingSecret string, port int) (int, error) {
	req := &message.ShareRequest{
		FileDescr:     descr,
		Filename:      filename,
		SharingSecret: sharingSecret,
		Port:          port,
	}

	reply, err := c.exchange(ctx, req)
	if err != nil {
		return 0, err
	}

	r, ok := reply.(*message.ShareReply)
	if !ok {
		return 0, unexpected(reply)
	}

	return r.NumSharers, nil
}

func (c *IndexClient) DropShare(ctx context.Context, filename, fileMD5, sharingSecret string, port int) error {
	req := &message.DropShareRequest{
		Filename:      filename,
		FileMD5:       fileMD5,
		SharingSecret: sharingSecret,
		Port:          port,
	}

	reply, err := c.exchange(ctx, req)
	if err != nil {
		return err
	}

	r, ok := reply.(*message.DropShareReply)
	if !ok {
		return unexpected(reply)
	}

	if !r.Success {
		return &ServerError{Msg: "drop refused"}
	}

	return nil
}

func (c *IndexClient) Search(ctx context.Context, keywords []string, maxHits int) ([]SearchRecord, error) {
	reply, err := c.exchange(ctx, &message.SearchRequest{MaxHits: maxHits, Keywords: keywords})
	if err != nil {
		return nil, err
	}

	r, ok := reply.(*message.SearchReply)
	if !ok {
		return nil, unexpected(reply)
	}

	if len(r.SeedCounts) != len(r.Hits) {
		return nil, fmt.Errorf("%w: %d seed counts for %d hits", ErrUnexpectedReply, len(r.SeedCounts), len(r.Hits))
	}

	records := make([]SearchRecord, len(r.Hits))
	for i, hit := range r.Hits {
		records[i] = SearchRecord{Hit: hit, NumSharers: r.SeedCounts[i]}
	}

	return records, nil
}

func (c *IndexClient) Lookup(ctx context.Context, filename, fileMD5 string) ([]*model.IndexElement, error) {
	reply, err := c.exchange(ctx, &message.LookupRequest{Filename: filename, FileMD5: fileMD5})
	if err != nil {
		return nil, err
	}

	r, ok := reply.(*message.LookupReply)
	if !ok {
		return nil, unexpected(reply)
	}

	return r.Hits, nil
}

// exchange runs one session: Welcome, authentication, req and its reply.
func (c *IndexClient) exchange(ctx context.Context, req message.Message) (message.Message, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	r := message.NewReader(conn)

	m, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading welcome: %w", err)
	}
	if _, ok := m.(*message.Welcome); !ok {
		return nil, unexpected(m)
	}

	if err := message.Write(conn, &message.AuthenticateRequest{Secret: c.Secret}); err != nil {
		return nil, err
	}

	m, err = r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading authentication reply: %w", err)
	}
	auth, ok := m.(*message.AuthenticateReply)
	if !ok {
		return nil, unexpected(m)
	}
	if !auth.Success {
		return nil, ErrAuthFailed
	}

	if err := message.Write(conn, req); err != nil {
		return nil, err
	}

	m, err = r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading %s reply: %w", req.Kind(), err)
	}

	return m, nil
}

func unexpected(m message.Message) error {
	if e, ok := m.(*message.ErrorMsg); ok {
		return &ServerError{Msg: e.Msg}
	}

	return fmt.Errorf("%w: %s", ErrUnexpectedReply, m.Kind())
}
