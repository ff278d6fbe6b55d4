package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pyropy/idxshare/core/model"
	"github.com/pyropy/idxshare/lib/logger"
	"github.com/pyropy/idxshare/rpc/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "server123"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.IdleTimeout = 2 * time.Second
	cfg.QueueCapacity = 8

	return cfg
}

func startServer(t *testing.T, cfg Config) string {
	t.Helper()

	srv, err := New(cfg, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return srv.Addr().String()
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *message.Reader
}

// dial connects and consumes the Welcome.
func dial(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	c := &testClient{t: t, conn: conn, reader: message.NewReader(conn)}
	welcome, ok := c.read().(*message.Welcome)
	require.True(t, ok)
	assert.Equal(t, DefaultConfig().Welcome, welcome.Msg)

	return c
}

// dialAuthenticated connects and authenticates with the right secret.
func dialAuthenticated(t *testing.T, addr string) *testClient {
	t.Helper()

	c := dial(t, addr)
	c.send(&message.AuthenticateRequest{Secret: testSecret})
	assert.Equal(t, &message.AuthenticateReply{Success: true}, c.read())

	return c
}

func (c *testClient) send(m message.Message) {
	c.t.Helper()
	require.NoError(c.t, message.Write(c.conn, m))
}

func (c *testClient) read() message.Message {
	c.t.Helper()

	m, err := c.reader.Read()
	require.NoError(c.t, err)

	return m
}

func (c *testClient) expectClosed() {
	c.t.Helper()

	_, err := c.reader.Read()
	require.Error(c.t, err)

	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(c.t, netErr.Timeout(), "connection was left open")
	}
}

func (c *testClient) roundTrip(req message.Message) message.Message {
	c.t.Helper()

	c.send(req)
	reply := c.read()
	c.expectClosed()

	return reply
}

func describe(t *testing.T, content string) *model.ChunkDescriptor {
	t.Helper()

	d, err := model.NewChunkDescriptor(strings.NewReader(content), int64(len(content)), 4)
	require.NoError(t, err)

	return d
}

func TestWrongSecretClosesConnection(t *testing.T) {
	addr := startServer(t, testConfig())

	c := dial(t, addr)
	c.send(&message.AuthenticateRequest{Secret: "nope"})
	assert.Equal(t, &message.AuthenticateReply{Success: false}, c.read())

	// anything sent now is ignored
	_ = message.Write(c.conn, &message.LookupRequest{Filename: "a", FileMD5: ""})
	c.expectClosed()
}

func TestShareEmptyFileThenLookup(t *testing.T) {
	addr := startServer(t, testConfig())
	empty := describe(t, "")

	c := dialAuthenticated(t, addr)
	reply := c.roundTrip(&message.ShareRequest{FileDescr: empty, Filename: "empty.txt", SharingSecret: "mine", Port: 4567})
	assert.Equal(t, &message.ShareReply{NumSharers: 1}, reply)

	c = dialAuthenticated(t, addr)
	reply = c.roundTrip(&message.LookupRequest{Filename: "empty.txt", FileMD5: ""})

	lookup, ok := reply.(*message.LookupReply)
	require.True(t, ok)
	require.Len(t, lookup.Hits, 1)
	assert.Equal(t, "127.0.0.1", lookup.Hits[0].IP)
	assert.Equal(t, 4567, lookup.Hits[0].Port)
	assert.Equal(t, "empty.txt", lookup.Hits[0].Filename)
	assert.True(t, empty.Equal(lookup.Hits[0].FileDescr))
}

func TestShareAndDropSecrets(t *testing.T) {
	addr := startServer(t, testConfig())
	d := describe(t, "ABCDEFGHI")

	c := dialAuthenticated(t, addr)
	assert.Equal(t, &message.ShareReply{NumSharers: 1},
		c.roundTrip(&message.ShareRequest{FileDescr: d, Filename: "letters", SharingSecret: "s1", Port: 4000}))

	c = dialAuthenticated(t, addr)
	assert.Equal(t, &message.ErrorMsg{Msg: "Failed sharing secret"},
		c.roundTrip(&message.ShareRequest{FileDescr: d, Filename: "letters", SharingSecret: "s2", Port: 4000}))

	c = dialAuthenticated(t, addr)
	assert.Equal(t, &message.ErrorMsg{Msg: "Failed secret"},
		c.roundTrip(&message.DropShareRequest{Filename: "letters", FileMD5: d.FileHash(), SharingSecret: "s2", Port: 4000}))

	c = dialAuthenticated(t, addr)
	assert.Equal(t, &message.ErrorMsg{Msg: "Not found"},
		c.roundTrip(&message.DropShareRequest{Filename: "letters", FileMD5: d.FileHash(), SharingSecret: "s1", Port: 4001}))

	c = dialAuthenticated(t, addr)
	assert.Equal(t, &message.DropShareReply{Success: true},
		c.roundTrip(&message.DropShareRequest{Filename: "letters", FileMD5: d.FileHash(), SharingSecret: "s1", Port: 4000}))

	c = dialAuthenticated(t, addr)
	assert.Equal(t, &message.LookupReply{Hits: []*model.IndexElement{}},
		c.roundTrip(&message.LookupRequest{Filename: "letters", FileMD5: d.FileHash()}))
}

func TestSearchReportsSeedCounts(t *testing.T) {
	addr := startServer(t, testConfig())
	d := describe(t, "ABCDEFGHI")

	for _, port := range []int{4000, 4001} {
		c := dialAuthenticated(t, addr)
		_, ok := c.roundTrip(&message.ShareRequest{FileDescr: d, Filename: "Letters.TXT", SharingSecret: "s", Port: port}).(*message.ShareReply)
		require.True(t, ok)
	}

	c := dialAuthenticated(t, addr)
	reply, ok := c.roundTrip(&message.SearchRequest{MaxHits: 10, Keywords: []string{"LETTERS", "txt"}}).(*message.SearchReply)
	require.True(t, ok)
	require.Len(t, reply.Hits, 1)
	assert.Equal(t, "Letters.TXT", reply.Hits[0].Filename)
	assert.Equal(t, []int{2}, reply.SeedCounts)
}

func TestShareRejectsInconsistentDescriptor(t *testing.T) {
	addr := startServer(t, testConfig())

	wrongCount := describe(t, "ABCDEFGHI")
	wrongCount.NumBlocks = 7

	forgedHashes := &model.ChunkDescriptor{
		FileLength:  9,
		BlockLength: 4,
		NumBlocks:   3,
		FileMD5:     "",
		BlockMD5:    []string{"", "x", "nothex"},
	}

	for _, d := range []*model.ChunkDescriptor{wrongCount, forgedHashes} {
		c := dialAuthenticated(t, addr)
		assert.Equal(t, &message.ErrorMsg{Msg: "Invalid message"},
			c.roundTrip(&message.ShareRequest{FileDescr: d, Filename: "x", SharingSecret: "s", Port: 1}))
	}

	// nothing was registered, not even under the empty-file hash
	c := dialAuthenticated(t, addr)
	assert.Equal(t, &message.LookupReply{Hits: []*model.IndexElement{}},
		c.roundTrip(&message.LookupRequest{Filename: "x", FileMD5: ""}))
}

func TestProtocolViolations(t *testing.T) {
	addr := startServer(t, testConfig())

	t.Run("request before authenticating", func(t *testing.T) {
		c := dial(t, addr)
		assert.Equal(t, &message.ErrorMsg{Msg: "Expecting AuthenticateRequest"},
			c.roundTrip(&message.LookupRequest{Filename: "a", FileMD5: ""}))
	})

	t.Run("garbage before authenticating", func(t *testing.T) {
		c := dial(t, addr)
		_, err := c.conn.Write([]byte("{not json\n"))
		require.NoError(t, err)
		assert.Equal(t, &message.ErrorMsg{Msg: "Invalid message"}, c.read())
		c.expectClosed()
	})

	t.Run("unknown kind after authenticating", func(t *testing.T) {
		c := dialAuthenticated(t, addr)
		_, err := c.conn.Write([]byte(`{"_class":"Nonsense"}` + "\n"))
		require.NoError(t, err)
		assert.Equal(t, &message.ErrorMsg{Msg: "Invalid message"}, c.read())
		c.expectClosed()
	})

	t.Run("non request after authenticating", func(t *testing.T) {
		c := dialAuthenticated(t, addr)
		assert.Equal(t, &message.ErrorMsg{Msg: "Expecting a request message"},
			c.roundTrip(&message.AuthenticateRequest{Secret: testSecret}))
	})
}

func TestIdleConnectionIsDropped(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 200 * time.Millisecond
	addr := startServer(t, cfg)

	c := dial(t, addr)
	start := time.Now()
	c.expectClosed()
	assert.Less(t, time.Since(start), 3*time.Second)

	// the dispatcher moved on
	c = dialAuthenticated(t, addr)
	_, ok := c.roundTrip(&message.SearchRequest{MaxHits: 1, Keywords: []string{"x"}}).(*message.SearchReply)
	assert.True(t, ok)
}

func TestShutdownClosesQueuedConnections(t *testing.T) {
	srv, err := New(testConfig(), logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()

	// hold the dispatcher in a session so the next connection stays queued
	busy := dial(t, srv.Addr().String())

	queued, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer queued.Close()
	require.Eventually(t, func() bool { return len(srv.queue) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	busy.send(&message.AuthenticateRequest{Secret: testSecret})
	assert.Equal(t, &message.AuthenticateReply{Success: true}, busy.read())
	_, ok := busy.roundTrip(&message.LookupRequest{Filename: "a", FileMD5: ""}).(*message.LookupReply)
	assert.True(t, ok, "in-flight session is finished before shutdown")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	require.NoError(t, queued.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = queued.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}
