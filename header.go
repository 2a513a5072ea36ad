package w3g

import (
	"bytes"
	"fmt"
)

// HeaderSize is the size of the version 1 replay header, which is also
// the offset of the first compressed data block.
const HeaderSize = 0x44

// Magic bytes at the start of every replay file.
var headerMagic = []byte("Warcraft III recorded game\x1a\x00")

const (
	// Only version 1 headers (patch 1.07 and later) are supported.
	supportedHeaderVersion = 0x00000001

	// "W3XP" (The Frozen Throne) stored little-endian.
	supportedClientType = "PX3W"

	flagMultiplayer = 0x8000
)

// Header is the file header of a replay.
//
// Layout (all values little-endian):
//
//	0x00  28 bytes  magic "Warcraft III recorded game\x1A\0"
//	0x1C  dword     offset of the first compressed data block (0x44)
//	0x20  dword     overall size of the compressed file
//	0x24  dword     header version (1)
//	0x28  dword     overall size of the decompressed data (excluding header)
//	0x2C  dword     number of compressed data blocks
//	0x30  dword     client type, "PX3W" for The Frozen Throne
//	0x34  dword     game version, e.g. 26 for 1.26
//	0x38  word      build number
//	0x3A  word      flags, 0x8000 for multiplayer games
//	0x3C  dword     replay length in milliseconds
//	0x40  dword     header checksum
type Header struct {
	// Overall size of the compressed file, including the header.
	CompressedSize uint32

	// Header format version, always 1.
	HeaderVersion uint32

	// Overall size of the decompressed data.
	DecompressedSize uint32

	// Number of compressed data blocks as declared by the header.
	// This is informational, blocks are read until the end of the file.
	BlockCount uint32

	// Client type tag as stored in the file ("PX3W").
	ClientType string

	// Game version number (the minor part of 1.xx).
	Version uint32

	BuildNumber uint16

	// Game type flags. Historically checked against multiplayer; currently read and ignored.
	Flags uint16

	// Replay length in milliseconds.
	Duration uint32

	// Header checksum. Read and stored, never verified.
	Checksum uint32
}

// VersionString returns the game version in its usual notation, e.g. "1.26".
func (h *Header) VersionString() string {
	return fmt.Sprintf("1.%02d", h.Version)
}

// IsMultiplayer tells if the flags word marks a multiplayer game.
func (h *Header) IsMultiplayer() bool {
	return h.Flags&flagMultiplayer != 0
}

// ParseHeader parses and validates the replay header at the start of data.
// It returns the header and the offset where the first data block starts.
func ParseHeader(data []byte) (*Header, int, error) {
	if len(data) < HeaderSize {
		return nil, 0, newError(ErrTruncatedData, len(data), "file is %d bytes, header needs %d", len(data), HeaderSize)
	}

	c := newCursor(data, 0)

	if magic := c.Bytes(len(headerMagic)); !bytes.Equal(magic, headerMagic) {
		return nil, 0, newError(ErrMalformedHeader, 0, "magic: got %q", magic)
	}

	if off := c.Uint32(); off != HeaderSize {
		return nil, 0, newError(ErrMalformedHeader, 0x1c, "first block offset: got 0x%x, expected 0x%x", off, HeaderSize)
	}

	h := &Header{}
	h.CompressedSize = c.Uint32()

	if h.HeaderVersion = c.Uint32(); h.HeaderVersion != supportedHeaderVersion {
		return nil, 0, newError(ErrMalformedHeader, 0x24, "header version: got 0x%x, expected 0x%x", h.HeaderVersion, supportedHeaderVersion)
	}

	h.DecompressedSize = c.Uint32()
	h.BlockCount = c.Uint32()

	if h.ClientType = string(c.Bytes(4)); h.ClientType != supportedClientType {
		return nil, 0, newError(ErrMalformedHeader, 0x30, "client type: got %q, expected %q", h.ClientType, supportedClientType)
	}

	h.Version = c.Uint32()
	h.BuildNumber = c.Uint16()
	h.Flags = c.Uint16()
	h.Duration = c.Uint32()
	h.Checksum = c.Uint32()

	if err := c.Err(); err != nil {
		return nil, 0, err
	}

	return h, c.Offset(), nil
}
