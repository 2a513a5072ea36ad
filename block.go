package w3g

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog/log"
)

// Size of the header preceding each compressed data block.
const blockHeaderSize = 8

// DataBlock is a compressed unit of the replay data.
//
// The replay data following the file header is split into blocks of 8 KiB
// (the last one may be smaller), each compressed on its own:
//
//	word   size of the compressed data block (excluding this header)
//	word   size of the decompressed data block
//	dword  checksum
//	n      compressed data (zlib / deflate)
type DataBlock struct {
	// Size of the compressed data, excluding the block header.
	CompressedSize uint16

	// Declared size of the decompressed data. Should be 8 KiB.
	DecompressedSize uint16

	// Block checksum. Read and stored, never verified.
	Checksum uint32

	// Compressed bytes. Aliases the buffer the block was read from.
	Compressed []byte

	// Decompressed bytes.
	Decompressed []byte
}

// ReadBlocks reads and decompresses the data blocks of a replay starting at offset
// (which is normally the value returned by ParseHeader) until the end of data.
//
// ErrEmptyReplay is returned if there is no block at all.
func ReadBlocks(data []byte, offset int) ([]*DataBlock, error) {
	c := newCursor(data, offset)

	var blocks []*DataBlock
	for c.Remaining() > 0 {
		if c.Remaining() < blockHeaderSize {
			return nil, newError(ErrTruncatedData, c.Offset(), "block %d: partial block header of %d bytes", len(blocks), c.Remaining())
		}

		b := &DataBlock{}
		b.CompressedSize = c.Uint16()
		b.DecompressedSize = c.Uint16()
		b.Checksum = c.Uint32()

		if int(b.CompressedSize) > c.Remaining() {
			return nil, newError(ErrTruncatedData, c.Offset(), "block %d: compressed size %d exceeds the %d remaining bytes",
				len(blocks), b.CompressedSize, c.Remaining())
		}
		start := c.Offset()
		b.Compressed = c.Bytes(int(b.CompressedSize))

		var err error
		if b.Decompressed, err = inflate(b.Compressed, int(b.DecompressedSize)); err != nil {
			return nil, newError(ErrMalformedRecord, start, "block %d: %v", len(blocks), err)
		}

		blocks = append(blocks, b)
	}

	if len(blocks) == 0 {
		return nil, newError(ErrEmptyReplay, offset, "no data blocks")
	}

	log.Debug().Int("blocks", len(blocks)).Msg("data blocks decompressed")
	return blocks, nil
}

// concat joins the decompressed payloads of blocks into the logical data stream.
func concat(blocks []*DataBlock) []byte {
	size := 0
	for _, b := range blocks {
		size += len(b.Decompressed)
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	for _, b := range blocks {
		buf.Write(b.Decompressed)
	}
	return buf.Bytes()
}

// inflate decompresses a block payload of at most limit bytes.
//
// Payloads are zlib framed; a payload without a valid zlib header is decoded as raw deflate.
// Some writers omit the zlib trailer, which is accepted as long as data was produced.
func inflate(compressed []byte, limit int) ([]byte, error) {
	var r io.ReadCloser
	if zr, err := zlib.NewReader(bytes.NewReader(compressed)); err == nil {
		r = zr
	} else {
		r = flate.NewReader(bytes.NewReader(compressed))
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && len(out) > 0) {
		return nil, err
	}
	if len(out) > limit {
		return nil, errors.New("inflates past the declared decompressed size")
	}
	return out, nil
}
