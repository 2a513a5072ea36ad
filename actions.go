package w3g

import (
	"bytes"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Record ids of the replay data stream.
const (
	recEndOfReplay  = 0x00
	recLeaveGame    = 0x17
	recFirstStart   = 0x1A
	recSecondStart  = 0x1B
	recThirdStart   = 0x1C
	recTimeSlotOld  = 0x1E
	recTimeSlot     = 0x1F
	recChat         = 0x20
	recChecksum     = 0x22
	recUnknown23    = 0x23
	recForcedEnd    = 0x2F
	recLeaveGameAlt = 0x54
)

// Action ids inside the action blocks of a timeslot.
const (
	actPause            = 0x01
	actResume           = 0x02
	actSetSpeed         = 0x03
	actIncSpeed         = 0x04
	actDecSpeed         = 0x05
	actSaveGame         = 0x06
	actSaveFinished     = 0x07
	actAbility          = 0x10
	actAbilityPos       = 0x11
	actAbilityPosObject = 0x12
	actGiveDropItem     = 0x13
	actAbilityTwoPos    = 0x14
	actChangeSelection  = 0x16
	actAssignGroup      = 0x17
	actSelectGroup      = 0x18
	actSelectSubgroup   = 0x19
	actPreSubselection  = 0x1A
	actUnknown1B        = 0x1B
	actSelectGroundItem = 0x1C
	actCancelRevival    = 0x1D
	actRemoveFromQueue  = 0x1E
	actUnknown21        = 0x21
	actAllyOptions      = 0x50
	actTransferRes      = 0x51
	actTriggerChat      = 0x60
	actEscPressed       = 0x61
	actScenarioTrigger  = 0x62
	actHeroSkillMenu    = 0x66
	actBuildingMenu     = 0x67
	actMinimapPing      = 0x68
	actContinueGameB    = 0x69
	actContinueGameA    = 0x6A
	actSyncStoredInt    = 0x70
	actUnknown75        = 0x75
)

// parseStream walks the replay data records starting at off until the end of data.
func (d *decoder) parseStream(data []byte, off int) error {
	c := newCursor(data, off)

	for c.Remaining() > 0 {
		start := c.Offset()
		switch tag := c.Uint8(); tag {
		case recEndOfReplay:
			// Only zero padding may follow
			rest := c.Bytes(c.Remaining())
			if i := bytes.IndexFunc(rest, func(r rune) bool { return r != 0 }); i >= 0 {
				return newError(ErrMalformedTrailer, start+1+i, "data after end of replay")
			}
		case recFirstStart, recSecondStart, recThirdStart:
			c.Skip(4)
		case recTimeSlotOld, recTimeSlot:
			if err := d.parseTimeSlot(c); err != nil {
				return err
			}
		case recLeaveGame, recLeaveGameAlt:
			c.Skip(13)
		case recChat:
			if err := d.parseChat(c); err != nil {
				return err
			}
		case recChecksum:
			c.Skip(5)
		case recUnknown23:
			c.Skip(10)
		case recForcedEnd:
			c.Skip(8)
		default:
			return newError(ErrUnknownOpcode, start, "record id 0x%02x", tag)
		}

		if err := c.Err(); err != nil {
			return err
		}
	}

	log.Debug().Dur("elapsed", d.m.ElapsedTime).Int("chat", len(d.m.Chat)).
		Int("events", d.events.len()).Msg("replay data parsed")
	return nil
}

// parseTimeSlot parses a timeslot record (after its record id):
//
//	word    number of bytes following (n >= 2)
//	word    time increment in milliseconds
//	n-2     command data: action blocks of players, each is
//	        byte player id, word action block length, actions
func (d *decoder) parseTimeSlot(c *cursor) error {
	start := c.Offset() - 1
	n := int(c.Uint16())
	if err := c.Err(); err != nil {
		return err
	}
	if n < 2 {
		return newError(ErrMalformedRecord, start, "timeslot byte count %d, min. 2", n)
	}
	d.m.ElapsedTime += time.Duration(c.Uint16()) * time.Millisecond

	if n-2 > c.Remaining() {
		return newError(ErrTruncatedData, c.Offset(), "timeslot of %d bytes, %d remaining", n-2, c.Remaining())
	}
	end := c.Offset() + n - 2

	for c.Offset() < end {
		groupStart := c.Offset()
		c.Uint8() // Player id
		length := int(c.Uint16())
		if err := c.Err(); err != nil {
			return err
		}
		groupEnd := c.Offset() + length
		if groupEnd > end {
			return newError(ErrMalformedRecord, groupStart, "action block of %d bytes overruns its timeslot", length)
		}
		if err := d.parseActions(c, groupEnd); err != nil {
			return err
		}
	}

	if c.Offset() != end {
		return newError(ErrMalformedRecord, start, "timeslot misaligned, ends at 0x%x instead of 0x%x", c.Offset(), end)
	}
	return nil
}

// parseActions parses the actions of a player action block ending at end.
// Only the map trigger store calls (custom events) are interpreted,
// everything else is skipped by its size.
func (d *decoder) parseActions(c *cursor, end int) error {
	for c.Offset() < end {
		start := c.Offset()
		switch id := c.Uint8(); id {
		case actPause, actResume, actIncSpeed, actDecSpeed, actPreSubselection,
			actEscPressed, actHeroSkillMenu, actBuildingMenu:
		case 0x20, 0x22, 0x23, 0x24, 0x25, 0x26, 0x29, 0x2A, 0x2B, 0x2C, 0x2F, 0x30, 0x31, 0x32:
			// Cheats, no parameters
		case actSetSpeed, actUnknown75:
			c.Skip(1)
		case actSaveGame:
			_ = c.String()
		case actSaveFinished:
			c.Skip(4)
		case actAbility:
			c.Skip(14)
		case actAbilityPos:
			c.Skip(22)
		case actAbilityPosObject:
			c.Skip(30)
		case actGiveDropItem:
			c.Skip(38)
		case actAbilityTwoPos:
			c.Skip(43)
		case actChangeSelection, actAssignGroup:
			c.Skip(1) // Select mode
			units := int(c.Uint16())
			c.Skip(units * 8) // Two object id dwords per unit
		case actSelectGroup:
			c.Skip(2)
		case actSelectSubgroup, actScenarioTrigger, actMinimapPing:
			c.Skip(12)
		case actUnknown1B, actSelectGroundItem, actTransferRes:
			c.Skip(9)
		case actCancelRevival, actUnknown21:
			c.Skip(8)
		case actRemoveFromQueue, actAllyOptions:
			c.Skip(5)
		case actTriggerChat:
			c.Skip(8) // Two unknown dwords
			_ = c.String()
		case actContinueGameB, actContinueGameA:
			c.Skip(16)
		case actSyncStoredInt:
			d.parseCustomEvent(c)
		default:
			return newError(ErrUnknownOpcode, start, "action id 0x%02x", id)
		}

		if err := c.Err(); err != nil {
			return err
		}
		if c.Offset() > end {
			return newError(ErrMalformedRecord, start, "action overruns its action block by %d bytes", c.Offset()-end)
		}
	}
	return nil
}

// parseCustomEvent parses a SyncStoredInteger call (after its action id):
// game cache name, mission key (event category) and key (event id and detail),
// all null-terminated.
func (d *decoder) parseCustomEvent(c *cursor) {
	start := c.Offset() - 1
	cache := c.String()
	category := c.String()
	key := c.String()
	if c.Err() != nil {
		return
	}

	e := newCustomEvent(cache, category, key)
	e.offset = start
	if !d.events.add(e) {
		log.Debug().Str("id", e.ID).Str("category", e.Category).Msg("duplicate event dropped")
	}
}

// parseChat parses a chat message record (after its record id):
//
//	byte    sender slot id
//	word    number of bytes following
//	byte    flags
//	dword   chat mode (all, allies, observers, ...)
//	string  message
func (d *decoder) parseChat(c *cursor) error {
	start := c.Offset() - 1
	slot := int(c.Uint8())
	if err := c.Err(); err != nil {
		return err
	}
	p := d.m.PlayerBySlot(slot)
	if p == nil {
		return newError(ErrUnknownPlayerReference, start, "chat message from slot id %d", slot)
	}

	c.Uint16() // Byte count, the terminator is trusted instead
	c.Uint8()  // Flags
	// Chat mode is not rendered: mixed teams make team addressing unreliable.
	c.Uint32()
	text := c.String()
	if err := c.Err(); err != nil {
		return err
	}

	// Invalid UTF-8 sequences are replaced, chat lines are stored as text.
	d.m.Chat = append(d.m.Chat, "["+p.Name+"]"+strings.ToValidUTF8(text, "\uFFFD"))
	return nil
}
