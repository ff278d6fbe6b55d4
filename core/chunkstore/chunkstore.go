// Package chunkstore keeps one file's content in fixed-size blocks, tracking
// which blocks already match a ChunkDescriptor so that an interrupted
// transfer can resume by fetching only the blocks still required.
package chunkstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/pyropy/idxshare/core/model"
	"github.com/pyropy/idxshare/lib/cache"
	"github.com/pyropy/idxshare/lib/checksum"
	"github.com/spf13/afero"
)

var (
	ErrBlockUnavailable = errors.New("block unavailable")
	ErrIncomplete       = errors.New("file content does not match its descriptor")
)

type ChunkStore struct {
	mu sync.Mutex

	file     afero.File
	descr    *model.ChunkDescriptor
	required map[int]struct{}
	complete map[int]struct{}

	// nil unless WithCacheSize was given
	blocks *cache.LRU[int, []byte]
}

type Option func(*ChunkStore)

// WithCacheSize keeps up to n recently read blocks in memory.
func WithCacheSize(n int) Option {
	return func(s *ChunkStore) {
		if n > 0 {
			s.blocks = cache.NewLRU[int, []byte](n)
		}
	}
}

// Open opens a file that is trusted to be complete and describes it with the
// given block length. The content is read once; every block is complete.
func Open(fs afero.Fs, path string, blockLength int32, opts ...Option) (*ChunkStore, error) {
	f, err := fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}

	descr, err := model.DescribeFile(f, blockLength)
	if err != nil {
		f.Close()
		return nil, err
	}

	// the content may have changed size while it was being hashed
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != descr.FileLength {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrIncomplete, path)
	}

	s := newChunkStore(f, descr, opts)
	for i := 0; i < int(descr.NumBlocks); i++ {
		s.complete[i] = struct{}{}
	}

	return s, nil
}

// OpenWithDescriptor opens (or creates) path as the target for the content
// described by descr. The file is resized to descr.FileLength and every block
// already holding the right bytes is marked complete.
func OpenWithDescriptor(fs afero.Fs, path string, descr *model.ChunkDescriptor, opts ...Option) (*ChunkStore, error) {
	if err := descr.Validate(); err != nil {
		return nil, err
	}

	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	if err := f.Truncate(descr.FileLength); err != nil {
		f.Close()
		return nil, err
	}

	s := newChunkStore(f, descr, opts)
	if err := s.seed(); err != nil {
		f.Close()
		return nil, err
	}

	return s, nil
}

func newChunkStore(f afero.File, descr *model.ChunkDescriptor, opts []Option) *ChunkStore {
	s := &ChunkStore{
		file:     f,
		descr:    descr,
		required: make(map[int]struct{}),
		complete: make(map[int]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *ChunkStore) seed() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < int(s.descr.NumBlocks); i++ {
		block, err := s.readBlockLocked(i)
		if err != nil {
			return fmt.Errorf("seeding block %d: %w", i, err)
		}

		if s.CheckBlockHash(i, block) {
			s.complete[i] = struct{}{}
		} else {
			s.required[i] = struct{}{}
		}
	}

	return nil
}

func (s *ChunkStore) readBlockLocked(i int) ([]byte, error) {
	offset, err := s.descr.BlockOffset(i)
	if err != nil {
		return nil, err
	}

	size, err := s.descr.BlockSize(i)
	if err != nil {
		return nil, err
	}

	block := make([]byte, size)
	n, err := s.file.ReadAt(block, offset)
	if n < size {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("short read of block %d (%d of %d bytes): %w", i, n, size, err)
	}

	return block, nil
}

// Descriptor returns the descriptor the store is validated against.
func (s *ChunkStore) Descriptor() *model.ChunkDescriptor {
	return s.descr
}

// CheckBlockHash reports whether block matches the descriptor's hash for
// block i. It never changes the store.
func (s *ChunkStore) CheckBlockHash(i int, block []byte) bool {
	want, err := s.descr.BlockHash(i)
	if err != nil {
		return false
	}

	return checksum.Sum(block) == want
}

// WriteBlock persists block at index i if the block is still required and
// its hash matches. It returns false, without changing anything, when the
// block is already complete or the bytes are wrong; callers retry with other
// bytes or move on. The error is reserved for invalid indices and I/O.
func (s *ChunkStore) WriteBlock(i int, block []byte) (bool, error) {
	offset, err := s.descr.BlockOffset(i)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.required[i]; !ok {
		return false, nil
	}

	if !s.CheckBlockHash(i, block) {
		return false, nil
	}

	if _, err := s.file.WriteAt(block, offset); err != nil {
		return false, fmt.Errorf("writing block %d: %w", i, err)
	}

	delete(s.required, i)
	s.complete[i] = struct{}{}

	return true, nil
}

// ReadBlock returns the bytes of a complete block.
func (s *ChunkStore) ReadBlock(i int) ([]byte, error) {
	if _, err := s.descr.BlockOffset(i); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.complete[i]; !ok {
		return nil, fmt.Errorf("%w: block %d", ErrBlockUnavailable, i)
	}

	if s.blocks != nil {
		if block, ok := s.blocks.Get(i); ok {
			return bytes.Clone(block), nil
		}
	}

	block, err := s.readBlockLocked(i)
	if err != nil {
		return nil, err
	}

	if s.blocks != nil {
		s.blocks.Put(i, bytes.Clone(block))
	}

	return block, nil
}

// CachedBlocks returns how many blocks are held in the read cache.
func (s *ChunkStore) CachedBlocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocks == nil {
		return 0
	}

	return s.blocks.Len()
}

func (s *ChunkStore) IsBlockAvailable(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.complete[i]
	return ok
}

func (s *ChunkStore) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.complete) == int(s.descr.NumBlocks)
}

// BlockAvailability returns one flag per block, true when the block is complete.
func (s *ChunkStore) BlockAvailability() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	available := make([]bool, s.descr.NumBlocks)
	for i := range available {
		_, available[i] = s.complete[i]
	}

	return available
}

// RequiredBlocks returns the indices still missing, in ascending order.
func (s *ChunkStore) RequiredBlocks() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	required := make([]int, 0, len(s.required))
	for i := range s.required {
		required = append(required, i)
	}
	sort.Ints(required)

	return required
}

// CheckFileHash recomputes a descriptor from what is on disk and compares the
// whole-file hash. Run it once IsComplete reports true.
func (s *ChunkStore) CheckFileHash() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := model.DescribeFile(s.file, s.descr.BlockLength)
	if err != nil {
		return false, err
	}

	return current.FileHash() == s.descr.FileHash(), nil
}

func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.file.Close()
}
