package w3g

import (
	"bytes"

	"github.com/rs/zerolog/log"
)

// Record ids of the game setup section.
const (
	recordHost       = 0x00
	recordPlayer     = 0x16
	recordSlotTable  = 0x19
	slotStatusEmpty  = 0x00
	slotComputerID   = 0x00
	settingsFlagSize = 13 // Game settings bytes preceding the map name in the decoded settings string
)

// parseSetup parses the game setup section at the start of the first decompressed block:
// the player roster, the game name and the slot table.
// It returns the offset right after the section.
//
//	dword        unknown
//	record       host player record
//	string       game name
//	byte         null byte
//	encoded str  game settings, map name, creator name
//	dword        map slot count
//	byte         game type
//	byte         private flag
//	word         unknown
//	dword        language id
//	records      additional player records, each starting with 0x16
//	byte         0x19 slot table record id
//	word         number of data bytes following
//	byte         number of slot records
//	n*9 bytes    slot records
//	dword        random seed
//	byte         select mode
//	byte         start spot count
func (d *decoder) parseSetup(data []byte) (int, error) {
	c := newCursor(data, 4)

	if err := d.parsePlayerRecord(c); err != nil {
		return 0, err
	}
	c.Skip(2) // Custom data byte (0x01) and null byte

	d.m.GameName = c.String()
	c.Skip(1)
	settings := c.MaskedString()
	slotCount := c.Uint32()
	c.Skip(1 + 1 + 2 + 4) // Game type, private flag, unknown word, language id
	if err := c.Err(); err != nil {
		return 0, err
	}
	d.parseSettings(settings)

	for c.Peek() == recordPlayer && c.Err() == nil {
		if err := d.parsePlayerRecord(c); err != nil {
			return 0, err
		}
		c.Skip(1 + 4 + 1) // Custom data byte, 4 unknown bytes, null byte
	}

	if tag := c.Uint8(); c.Err() == nil && tag != recordSlotTable {
		return 0, newError(ErrMalformedRecord, c.Offset()-1, "slot table: expected record id 0x%x, got 0x%x", recordSlotTable, tag)
	}
	c.Uint16() // Data length
	slots := int(c.Uint8())

	for i := 0; i < slots; i++ {
		id := int(c.Uint8())
		if id == slotComputerID {
			c.Skip(8)
			continue
		}
		c.Skip(1) // Map download percent
		if c.Peek() == slotStatusEmpty {
			c.Skip(7)
			continue
		}
		c.Skip(2) // Slot status, computer flag
		team := int(c.Uint8())
		if err := c.Err(); err != nil {
			return 0, err
		}

		p := d.m.PlayerBySlot(id)
		if p == nil {
			return 0, newError(ErrUnknownPlayerReference, c.Offset()-5, "slot table references slot id %d", id)
		}
		p.Team = team
		d.m.PlayerCount++

		c.Skip(4) // Color, race flags, AI strength, handicap
	}

	c.Skip(4 + 1 + 1) // Random seed, select mode, start spot count
	if err := c.Err(); err != nil {
		return 0, err
	}

	log.Debug().Str("game", d.m.GameName).Uint32("mapSlots", slotCount).
		Int("roster", len(d.m.Players)).Int("players", d.m.PlayerCount).Msg("game setup parsed")
	return c.Offset(), nil
}

// parsePlayerRecord parses the record id, slot id and name of a roster entry and adds the player.
func (d *decoder) parsePlayerRecord(c *cursor) error {
	start := c.Offset()
	recordID := int(c.Uint8())
	slotID := int(c.Uint8())
	name := c.String()
	if err := c.Err(); err != nil {
		return err
	}

	if d.m.PlayerBySlot(slotID) != nil {
		return newError(ErrMalformedRecord, start, "duplicate roster slot id %d (%q)", slotID, name)
	}
	d.m.Players = append(d.m.Players, newPlayer(name, slotID, recordID))
	return nil
}

// parseSettings extracts the map name and creator from the decoded game settings.
// The settings are only needed to advance over the section, so a short value is not an error.
func (d *decoder) parseSettings(settings []byte) {
	if len(settings) <= settingsFlagSize {
		return
	}
	fields := bytes.SplitN(settings[settingsFlagSize:], []byte{0}, 3)
	d.m.MapName = string(fields[0])
	if len(fields) > 1 {
		d.m.Creator = string(fields[1])
	}
}
