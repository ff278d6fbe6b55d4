// Package client is the peer side of idxshare: an IndexClient for the index
// server protocol and a Peer that shares local files, keeps a record of them
// and prepares resumable downloads.
package client

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pyropy/idxshare/core/chunkstore"
	"github.com/pyropy/idxshare/core/model"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DownloadCacheBlocks is how many verified blocks a download keeps in
// memory for serving to other peers.
const DownloadCacheBlocks = 4

var (
	ErrNoSources          = errors.New("no sharers for file")
	ErrInvalidPath        = errors.New("path escapes the share directory")
	ErrBlockLengthTooLong = errors.New("descriptor block length too large")
)

type Peer struct {
	*ShareStore

	Index       *IndexClient
	Port        int
	BlockLength int32

	fs       afero.Fs
	shareDir string
	log      *zap.SugaredLogger
}

// NewPeer serves files under shareDir of fs and advertises port to the
// index server.
func NewPeer(fs afero.Fs, shareDir string, store *ShareStore, index *IndexClient, port int, log *zap.SugaredLogger) *Peer {
	return &Peer{
		ShareStore:  store,
		Index:       index,
		Port:        port,
		BlockLength: model.DefaultBlockLength,
		fs:          fs,
		shareDir:    shareDir,
		log:         log,
	}
}

// ShareFile describes relPath and registers it with the index server. An
// empty secret is replaced with a random one, kept in the share record so
// the file can be dropped later.
func (p *Peer) ShareFile(ctx context.Context, relPath, secret string) (*model.ShareRecord, error) {
	name, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}

	if secret == "" {
		secret = uuid.NewString()
	}

	descr, err := p.Describe(name)
	if err != nil {
		return nil, err
	}

	numSharers, err := p.Index.Share(ctx, descr, name, secret, p.Port)
	if err != nil {
		return nil, fmt.Errorf("sharing %s: %w", name, err)
	}

	record := model.NewShareRecord(name, *descr, p.Index.Addr, secret, numSharers)
	if err := p.ShareStore.Put(ctx, record); err != nil {
		return nil, err
	}

	p.log.Infow("share", "status", "shared", "path", name, "md5", descr.FileHash(), "sharers", numSharers)

	return &record, nil
}

// DropShare withdraws a file shared earlier through this peer.
func (p *Peer) DropShare(ctx context.Context, relPath string) error {
	name, err := cleanRelPath(relPath)
	if err != nil {
		return err
	}

	record, err := p.ShareStore.Get(ctx, name)
	if err != nil {
		return err
	}

	err = p.Index.DropShare(ctx, name, record.Descriptor.FileHash(), record.SharerSecret, p.Port)
	if err != nil {
		return fmt.Errorf("dropping %s: %w", name, err)
	}

	p.log.Infow("drop", "status", "dropped", "path", name)

	return p.ShareStore.Delete(ctx, name)
}

func (p *Peer) Search(ctx context.Context, keywords []string, maxHits int) ([]SearchRecord, error) {
	return p.Index.Search(ctx, keywords, maxHits)
}

func (p *Peer) Lookup(ctx context.Context, filename, fileMD5 string) ([]*model.IndexElement, error) {
	return p.Index.Lookup(ctx, filename, fileMD5)
}

// Shares lists this peer's share records.
func (p *Peer) Shares(ctx context.Context) ([]*model.ShareRecord, error) {
	return p.ShareStore.All(ctx)
}

// Describe computes the descriptor of a file under the share directory.
func (p *Peer) Describe(relPath string) (*model.ChunkDescriptor, error) {
	name, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}

	store, err := chunkstore.Open(p.fs, p.localPath(name), p.BlockLength)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.Descriptor(), nil
}

// PrepareDownload looks up the sharers of filename with content fileMD5 and
// opens a ChunkStore for it under the share directory. Blocks already on
// disk that match are kept; RequiredBlocks lists what is still to fetch.
func (p *Peer) PrepareDownload(ctx context.Context, filename, fileMD5 string) (*chunkstore.ChunkStore, []*model.IndexElement, error) {
	name, err := cleanRelPath(filename)
	if err != nil {
		return nil, nil, err
	}

	hits, err := p.Index.Lookup(ctx, name, fileMD5)
	if err != nil {
		return nil, nil, err
	}

	if len(hits) == 0 {
		return nil, nil, fmt.Errorf("%w: %s (%s)", ErrNoSources, name, fileMD5)
	}

	descr := hits[0].FileDescr
	if err := descr.Validate(); err != nil {
		return nil, nil, err
	}

	// the descriptor sizes every block buffer
	if descr.BlockLength > model.DefaultBlockLength {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrBlockLengthTooLong, descr.BlockLength, model.DefaultBlockLength)
	}

	if err := p.fs.MkdirAll(path.Dir(p.localPath(name)), 0755); err != nil {
		return nil, nil, err
	}

	store, err := chunkstore.OpenWithDescriptor(p.fs, p.localPath(name), descr, chunkstore.WithCacheSize(DownloadCacheBlocks))
	if err != nil {
		return nil, nil, err
	}

	p.log.Infow("download", "status", "prepared", "path", name,
		"required", len(store.RequiredBlocks()), "blocks", descr.NumBlocks, "sharers", len(hits))

	return store, hits, nil
}

func (p *Peer) Close() error {
	var err error
	if p.ShareStore != nil {
		err = multierr.Append(err, p.ShareStore.Close())
	}

	return err
}

func (p *Peer) localPath(name string) string {
	return path.Join(filepath.ToSlash(p.shareDir), name)
}

// cleanRelPath turns a user supplied path into the slash separated relative
// name used on the wire and as the store key.
func cleanRelPath(relPath string) (string, error) {
	name := path.Clean(filepath.ToSlash(relPath))
	if name == "." || path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}

	return name, nil
}
