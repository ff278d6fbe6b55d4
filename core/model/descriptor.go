package model

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/pyropy/idxshare/lib/checksum"
	"github.com/spf13/afero"
)

// DefaultBlockLength is the block size used when a caller does not pick one.
const DefaultBlockLength int32 = 16 * 1024 * 1024

var (
	ErrInvalidBlockIndex  = errors.New("invalid block index")
	ErrInvalidBlockLength = errors.New("block length must be positive")
	ErrInvalidDescriptor  = errors.New("invalid chunk descriptor")
)

// ChunkDescriptor is the immutable manifest of a file: its block layout plus
// the hash of every block and of the whole content. Hashes are uppercase hex
// MD5 digests; an empty file carries the empty string instead.
type ChunkDescriptor struct {
	FileLength  int64    `json:"fileLength"`
	BlockLength int32    `json:"blockLength"`
	NumBlocks   int32    `json:"numBlocks"`
	FileMD5     string   `json:"fileMd5"`
	BlockMD5    []string `json:"blockMd5"`
}

// NumBlocksFor returns ceil(fileLength / blockLength).
func NumBlocksFor(fileLength int64, blockLength int32) int64 {
	bl := int64(blockLength)
	return (fileLength + bl - 1) / bl
}

// NewChunkDescriptor reads fileLength bytes from r exactly once, hashing each
// block and the cumulative content.
func NewChunkDescriptor(r io.ReaderAt, fileLength int64, blockLength int32) (*ChunkDescriptor, error) {
	if blockLength <= 0 {
		return nil, ErrInvalidBlockLength
	}

	if fileLength < 0 {
		return nil, fmt.Errorf("%w: negative file length %d", ErrInvalidDescriptor, fileLength)
	}

	numBlocks := NumBlocksFor(fileLength, blockLength)
	if numBlocks > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d blocks of %d bytes", ErrInvalidDescriptor, numBlocks, blockLength)
	}

	d := &ChunkDescriptor{
		FileLength:  fileLength,
		BlockLength: blockLength,
		NumBlocks:   int32(numBlocks),
		BlockMD5:    make([]string, numBlocks),
	}

	// empty files are never hashed
	if fileLength == 0 {
		return d, nil
	}

	fileDigest := checksum.New()
	blockDigest := checksum.New()

	bufLen := int64(blockLength)
	if fileLength < bufLen {
		bufLen = fileLength
	}
	buf := make([]byte, bufLen)

	for i := 0; i < int(d.NumBlocks); i++ {
		offset, size := d.layout(i)
		block := buf[:size]

		n, err := r.ReadAt(block, offset)
		if n < size {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("reading block %d: %w", i, err)
		}

		fileDigest.Write(block)
		blockDigest.Reset()
		blockDigest.Write(block)
		d.BlockMD5[i] = checksum.Hex(blockDigest.Sum(nil))
	}

	d.FileMD5 = checksum.Hex(fileDigest.Sum(nil))

	return d, nil
}

// DescribeFile builds a descriptor for the current content of f.
func DescribeFile(f afero.File, blockLength int32) (*ChunkDescriptor, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return NewChunkDescriptor(f, fi.Size(), blockLength)
}

func (d *ChunkDescriptor) layout(i int) (int64, int) {
	offset := int64(i) * int64(d.BlockLength)
	size := d.FileLength - offset
	if size > int64(d.BlockLength) {
		size = int64(d.BlockLength)
	}

	return offset, int(size)
}

func (d *ChunkDescriptor) checkIndex(i int) error {
	if i < 0 || i >= int(d.NumBlocks) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidBlockIndex, i, d.NumBlocks)
	}

	return nil
}

// BlockOffset returns the byte offset of block i.
func (d *ChunkDescriptor) BlockOffset(i int) (int64, error) {
	if err := d.checkIndex(i); err != nil {
		return 0, err
	}

	offset, _ := d.layout(i)
	return offset, nil
}

// BlockSize returns the number of bytes in block i. Every block holds
// BlockLength bytes except the last, which holds the remainder.
func (d *ChunkDescriptor) BlockSize(i int) (int, error) {
	if err := d.checkIndex(i); err != nil {
		return 0, err
	}

	_, size := d.layout(i)
	return size, nil
}

// BlockHash returns the expected hash of block i, or "" for an empty file.
func (d *ChunkDescriptor) BlockHash(i int) (string, error) {
	if d.FileLength == 0 {
		return "", nil
	}

	if err := d.checkIndex(i); err != nil {
		return "", err
	}

	return d.BlockMD5[i], nil
}

// FileHash returns the whole-content hash, or "" for an empty file.
func (d *ChunkDescriptor) FileHash() string {
	if d.FileLength == 0 {
		return ""
	}

	return d.FileMD5
}

// Validate checks the layout invariants of a descriptor that did not come
// from NewChunkDescriptor, e.g. one decoded off the wire.
func (d *ChunkDescriptor) Validate() error {
	switch {
	case d.BlockLength <= 0:
		return ErrInvalidBlockLength
	case d.FileLength < 0:
		return fmt.Errorf("%w: negative file length %d", ErrInvalidDescriptor, d.FileLength)
	case NumBlocksFor(d.FileLength, d.BlockLength) != int64(d.NumBlocks):
		return fmt.Errorf("%w: %d blocks for %d bytes of %d", ErrInvalidDescriptor, d.NumBlocks, d.FileLength, d.BlockLength)
	case len(d.BlockMD5) != int(d.NumBlocks):
		return fmt.Errorf("%w: %d block hashes for %d blocks", ErrInvalidDescriptor, len(d.BlockMD5), d.NumBlocks)
	}

	if d.FileLength == 0 {
		if d.FileMD5 != "" {
			return fmt.Errorf("%w: empty file with hash %q", ErrInvalidDescriptor, d.FileMD5)
		}
		return nil
	}

	if !checksum.IsHex(d.FileMD5) {
		return fmt.Errorf("%w: malformed file hash %q", ErrInvalidDescriptor, d.FileMD5)
	}

	for i, h := range d.BlockMD5 {
		if !checksum.IsHex(h) {
			return fmt.Errorf("%w: malformed hash %q for block %d", ErrInvalidDescriptor, h, i)
		}
	}

	return nil
}

// Equal reports whether both descriptors describe the same layout and content.
func (d *ChunkDescriptor) Equal(o *ChunkDescriptor) bool {
	if d == nil || o == nil {
		return d == o
	}

	if d.FileLength != o.FileLength || d.BlockLength != o.BlockLength ||
		d.NumBlocks != o.NumBlocks || d.FileHash() != o.FileHash() ||
		len(d.BlockMD5) != len(o.BlockMD5) {
		return false
	}

	for i := range d.BlockMD5 {
		if d.BlockMD5[i] != o.BlockMD5[i] {
			return false
		}
	}

	return true
}
