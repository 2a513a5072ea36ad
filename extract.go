package w3g

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// applyEvents applies the collected events to the match in insertion order.
func (d *decoder) applyEvents() error {
	for _, e := range d.events.events {
		if err := d.applyEvent(e); err != nil {
			return err
		}
	}
	log.Debug().Int("events", d.events.len()).Msg("events applied")
	return nil
}

func (d *decoder) applyEvent(e *CustomEvent) error {
	m := d.m

	switch cat := ParseCategory(e.Category); cat {
	case CategoryGameMode:
		mode, ok := ParseGameMode(e.Detail)
		if !ok {
			return eventError(ErrInvalidEventData, e, "unexpected game mode %q", e.Detail)
		}
		m.Mode = mode

	case CategoryPracticeMode:
		m.Practice = true

	case CategoryRoundVictory:
		switch {
		case strings.EqualFold(e.Detail, "T1"):
			m.TeamOneVictories++
		case strings.EqualFold(e.Detail, "T2"):
			m.TeamTwoVictories++
		case strings.EqualFold(e.Detail, "Draw"):
			m.Draws++
		default:
			return eventError(ErrInvalidEventData, e, "unexpected round victory %q", e.Detail)
		}

	case CategoryServantSelection:
		return d.applyServantSelection(e)

	case CategoryKill:
		f, err := fields(e, 2)
		if err != nil {
			return err
		}
		killer, err := d.player(e, f[0])
		if err != nil {
			return err
		}
		victim, err := d.player(e, f[1])
		if err != nil {
			return err
		}
		if killer != victim {
			killer.Kills++
		}
		victim.Deaths++

	case CategoryAssist, CategorySuicide:
		f, err := fields(e, 1)
		if err != nil {
			return err
		}
		p, err := d.player(e, f[0])
		if err != nil {
			return err
		}
		if cat == CategoryAssist {
			p.Assists++
		} else {
			p.Deaths++
		}

	case CategoryAttribute, CategoryStat, CategoryCommandSeal, CategoryGodsHelp, CategoryItemBuy:
		f, err := fields(e, 2)
		if err != nil {
			return err
		}
		p, err := d.player(e, f[0])
		if err != nil {
			return err
		}
		list := p.abilityList(cat)
		*list = append(*list, f[1])

	case CategoryDamage:
		f, err := fields(e, 3)
		if err != nil {
			return err
		}
		source, err := d.player(e, f[0])
		if err != nil {
			return err
		}
		target, err := d.player(e, f[1])
		if err != nil {
			return err
		}
		amount, err := strconv.ParseFloat(f[2], 64)
		if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
			return eventError(ErrInvalidEventData, e, "invalid damage amount %q", f[2])
		}
		source.DamageDealt += amount
		target.DamageTaken += amount

	case CategoryLevelUp:
		f, err := fields(e, 2)
		if err != nil {
			return err
		}
		p, err := d.player(e, f[0])
		if err != nil {
			return err
		}
		level, err := strconv.Atoi(f[1])
		if err != nil || level < 1 {
			return eventError(ErrInvalidEventData, e, "invalid level %q", f[1])
		}
		p.ServantLevel = level

	case CategoryForfeit:
		// Reserved, the surrender team tag is not recorded.

	default:
		return eventError(ErrInvalidEventData, e, "unknown category")
	}

	return nil
}

// applyServantSelection handles "name//gameId//servantId//team".
func (d *decoder) applyServantSelection(e *CustomEvent) error {
	f, err := fields(e, 4)
	if err != nil {
		return err
	}

	gameID, err := strconv.Atoi(f[1])
	if err != nil {
		return eventError(ErrInvalidEventData, e, "invalid game id %q", f[1])
	}
	team, err := strconv.Atoi(f[3])
	if err != nil || team < 1 || team > 2 {
		return eventError(ErrInvalidEventData, e, "invalid team number %q", f[3])
	}

	p := d.m.PlayerByName(f[0])
	if p == nil {
		return eventError(ErrUnknownPlayerReference, e, "no player named %q", f[0])
	}
	if other := d.m.PlayerByGameID(gameID); other != nil && other != p {
		return eventError(ErrInvalidEventData, e, "game id %d already held by %q", gameID, other.Name)
	}

	p.ServantID = f[2]
	p.GameID = gameID
	p.HasGameID = true
	// Teams may be mixed, the selection carries the final team (1 based).
	p.Team = team - 1
	return nil
}

// player resolves a game id field of an event.
func (d *decoder) player(e *CustomEvent, field string) (*Player, error) {
	gameID, err := strconv.Atoi(field)
	if err != nil {
		return nil, eventError(ErrInvalidEventData, e, "invalid game id %q", field)
	}
	p := d.m.PlayerByGameID(gameID)
	if p == nil {
		return nil, eventError(ErrUnknownPlayerReference, e, "no player with game id %d", gameID)
	}
	return p, nil
}

// fields returns the detail fields of e, which must be exactly n.
func fields(e *CustomEvent, n int) ([]string, error) {
	f := e.Fields()
	if len(f) != n {
		return nil, eventError(ErrInvalidEventData, e, "expected %d fields, got %d", n, len(f))
	}
	return f, nil
}

// abilityList returns the list of p that collects the ability ids of the given category.
func (p *Player) abilityList(c Category) *[]string {
	switch c {
	case CategoryAttribute:
		return &p.Attributes
	case CategoryStat:
		return &p.Stats
	case CategoryCommandSeal:
		return &p.CommandSeals
	case CategoryGodsHelp:
		return &p.GodsHelp
	}
	return &p.Items
}

func eventError(kind error, e *CustomEvent, format string, args ...interface{}) *DecodeError {
	return newError(kind, e.offset, "%s event %q (%q): %s", e.Category, e.ID, e.Detail, fmt.Sprintf(format, args...))
}
