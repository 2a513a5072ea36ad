package w3g

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

// Test-only encoder of synthetic replays.

type fixturePlayer struct {
	slot int
	name string
	team int
}

type replayBuilder struct {
	header   Header
	gameName string
	mapName  string
	creator  string

	// Roster, the first player is the host.
	players []fixturePlayer

	// Slot table records; derived from players if nil.
	slots   [][]byte
	slotTag byte

	stream bytes.Buffer

	// Max replay data bytes per block after the first one; 0 means a single block.
	chunk int
}

func newReplayBuilder(players ...fixturePlayer) *replayBuilder {
	return &replayBuilder{
		header: Header{
			HeaderVersion: supportedHeaderVersion,
			ClientType:    supportedClientType,
			Version:       26,
			BuildNumber:   6059,
			Flags:         flagMultiplayer,
			Duration:      25 * 60 * 1000,
		},
		gameName: "-ar fate",
		mapName:  `Maps\Download\FateAnother.w3x`,
		creator:  "Battle.net",
		players:  players,
		slotTag:  recordSlotTable,
	}
}

// twoPlayerReplay returns a builder of a 1 vs 1 game of Saber (slot 1) and Archer (slot 2).
func twoPlayerReplay() *replayBuilder {
	return newReplayBuilder(fixturePlayer{1, "Saber", 0}, fixturePlayer{2, "Archer", 1})
}

func (b *replayBuilder) record(data ...byte) *replayBuilder {
	b.stream.Write(data)
	return b
}

func (b *replayBuilder) timeSlot(delta int, groups ...[]byte) *replayBuilder {
	n := 2
	for _, g := range groups {
		n += len(g)
	}
	b.stream.WriteByte(recTimeSlot)
	b.stream.Write(le16(n))
	b.stream.Write(le16(delta))
	for _, g := range groups {
		b.stream.Write(g)
	}
	return b
}

func (b *replayBuilder) chat(slot int, text string) *replayBuilder {
	b.stream.WriteByte(recChat)
	b.stream.WriteByte(byte(slot))
	b.stream.Write(le16(1 + 4 + len(text) + 1))
	b.stream.WriteByte(0x20)
	b.stream.Write(le32(0))
	b.stream.WriteString(text)
	b.stream.WriteByte(0)
	return b
}

// end writes the end of replay marker followed by zero padding.
func (b *replayBuilder) end() *replayBuilder {
	b.stream.Write([]byte{recEndOfReplay, 0, 0, 0})
	return b
}

func (b *replayBuilder) setup() []byte {
	var buf bytes.Buffer
	buf.Write(le32(0x110))

	host := b.players[0]
	buf.WriteByte(recordHost)
	buf.WriteByte(byte(host.slot))
	buf.WriteString(host.name)
	buf.Write([]byte{0, 0x01, 0})

	buf.WriteString(b.gameName)
	buf.Write([]byte{0, 0})

	settings := make([]byte, settingsFlagSize)
	settings = append(settings, b.mapName...)
	settings = append(settings, 0)
	settings = append(settings, b.creator...)
	settings = append(settings, 0, 0)
	buf.Write(encodeMasked(settings))
	buf.WriteByte(0)

	buf.Write(le32(12))
	buf.Write([]byte{0x09, 0x00, 0, 0})
	buf.Write(le32(0x409))

	for _, p := range b.players[1:] {
		buf.WriteByte(recordPlayer)
		buf.WriteByte(byte(p.slot))
		buf.WriteString(p.name)
		buf.Write([]byte{0, 0x01, 0, 0, 0, 0, 0})
	}

	slots := b.slots
	if slots == nil {
		for _, p := range b.players {
			slots = append(slots, slotRecord(p.slot, p.team))
		}
	}
	buf.WriteByte(b.slotTag)
	buf.Write(le16(1 + 9*len(slots) + 6))
	buf.WriteByte(byte(len(slots)))
	for _, s := range slots {
		buf.Write(s)
	}
	buf.Write(le32(0xdeadbeef))
	buf.Write([]byte{0x00, 12})

	return buf.Bytes()
}

func (b *replayBuilder) bytes(t testing.TB) []byte {
	data := append(b.setup(), b.stream.Bytes()...)

	var parts [][]byte
	if b.chunk <= 0 || len(b.stream.Bytes()) <= b.chunk {
		parts = [][]byte{data}
	} else {
		first := len(data) - b.stream.Len() + b.chunk
		parts = append(parts, data[:first])
		for rest := data[first:]; len(rest) > 0; {
			n := b.chunk
			if n > len(rest) {
				n = len(rest)
			}
			parts = append(parts, rest[:n])
			rest = rest[n:]
		}
	}

	var blocks bytes.Buffer
	for _, p := range parts {
		compressed := deflateZlib(t, p)
		blocks.Write(le16(len(compressed)))
		blocks.Write(le16(len(p)))
		blocks.Write(le32(0))
		blocks.Write(compressed)
	}

	h := b.header
	h.CompressedSize = uint32(HeaderSize + blocks.Len())
	h.DecompressedSize = uint32(len(data))
	h.BlockCount = uint32(len(parts))

	return append(encodeHeader(&h), blocks.Bytes()...)
}

// encodeHeader encodes h in the version 1 header layout.
func encodeHeader(h *Header) []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = append(buf, headerMagic...)
	buf = append(buf, le32(HeaderSize)...)
	buf = append(buf, le32(int(h.CompressedSize))...)
	buf = append(buf, le32(int(h.HeaderVersion))...)
	buf = append(buf, le32(int(h.DecompressedSize))...)
	buf = append(buf, le32(int(h.BlockCount))...)
	buf = append(buf, h.ClientType...)
	buf = append(buf, le32(int(h.Version))...)
	buf = append(buf, le16(int(h.BuildNumber))...)
	buf = append(buf, le16(int(h.Flags))...)
	buf = append(buf, le32(int(h.Duration))...)
	buf = append(buf, le32(int(h.Checksum))...)
	return buf
}

// encodeMasked encodes data in the game settings string encoding (without terminator).
func encodeMasked(data []byte) []byte {
	var out []byte
	for len(data) > 0 {
		n := len(data)
		if n > 7 {
			n = 7
		}
		mask := byte(1)
		group := make([]byte, n)
		for i, c := range data[:n] {
			if c == 0xff {
				mask |= 1 << uint(i+1)
				group[i] = c
			} else {
				group[i] = c + 1
			}
		}
		out = append(out, mask)
		out = append(out, group...)
		data = data[n:]
	}
	return out
}

func deflateZlib(t testing.TB, data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func slotRecord(slot, team int) []byte {
	return []byte{byte(slot), 100, 2, 0, byte(team), byte(slot - 1), 0x20, 0x01, 100}
}

func emptySlot(slot int) []byte {
	return []byte{byte(slot), 100, slotStatusEmpty, 0, 0, 0, 0x60, 0x01, 100}
}

func computerSlot(team int) []byte {
	return []byte{slotComputerID, 100, 2, 1, byte(team), 0, 0x20, 0x01, 100}
}

// actionGroup encodes the action block of a player.
func actionGroup(player int, actions ...[]byte) []byte {
	data := bytes.Join(actions, nil)
	return append(append([]byte{byte(player)}, le16(len(data))...), data...)
}

// eventAction encodes a SyncStoredInteger action.
func eventAction(category, key string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(actSyncStoredInt)
	buf.WriteString("FRS\x00")
	buf.WriteString(category)
	buf.WriteByte(0)
	buf.WriteString(key)
	buf.WriteByte(0)
	return buf.Bytes()
}

// eventKey builds the key of an event: the id, then the detail fields.
func eventKey(id string, fields ...string) string {
	return id + "/" + strings.Join(fields, detailSep)
}

func le16(v int) []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(v))
}

func le32(v int) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v))
}
