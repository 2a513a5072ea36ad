package w3g

import (
	"strings"
	"time"
)

// GameMode is the mode a Fate game was played in.
type GameMode int

const (
	Deathmatch GameMode = iota
	CaptureTheFlag
	Ranked
)

var gameModeNames = [...]string{
	Deathmatch:     "DM",
	CaptureTheFlag: "CTF",
	Ranked:         "Ranked",
}

func (g GameMode) String() string {
	if g < 0 || int(g) >= len(gameModeNames) {
		return "Unknown"
	}
	return gameModeNames[g]
}

// ParseGameMode parses a game mode name case-insensitively.
func ParseGameMode(s string) (GameMode, bool) {
	for i, name := range gameModeNames {
		if strings.EqualFold(s, name) {
			return GameMode(i), true
		}
	}
	return 0, false
}

// Result is the outcome of a match derived from the round victories.
type Result string

const (
	TeamOneWin Result = "T1W"
	TeamTwoWin Result = "T2W"
	NoResult   Result = "NONE"
)

// Player is a roster entry of the match.
type Player struct {
	Name string

	// Replay slot id, 1..12, assigned in the game setup. Used for chat attribution.
	SlotID int

	// 0x00 for the host record, 0x16 for additional players.
	RecordID int

	// Id assigned by the map on servant selection. Used for all gameplay event attribution.
	// Only valid if HasGameID is true.
	GameID    int
	HasGameID bool

	// Zero based team index, reassigned on servant selection (teams may be mixed).
	Team int

	Kills   int
	Deaths  int
	Assists int

	// Selected servant (hero) unit type id, e.g. "H000". Empty until selection.
	ServantID    string
	ServantLevel int

	DamageDealt float64
	DamageTaken float64

	Items        []string // Purchased item ids
	Attributes   []string // Learned attribute ability ids
	Stats        []string // Learned stat ability ids
	CommandSeals []string // Used command seal ability ids
	GodsHelp     []string // Used gods help ability ids

	// Observer is set for players who never selected a servant.
	Observer bool
}

func newPlayer(name string, slotID, recordID int) *Player {
	return &Player{
		Name:         name,
		SlotID:       slotID,
		RecordID:     recordID,
		ServantLevel: 1,
	}
}

// Match is the decoded match record of a replay.
type Match struct {
	Header *Header

	GameName string

	// Map path and game creator from the encoded game settings. Best effort, may be empty.
	MapName string
	Creator string

	Mode     GameMode
	Practice bool

	TeamOneVictories int
	TeamTwoVictories int
	Draws            int

	// Chat lines in order, formatted as "[sender]message".
	Chat []string

	Players []*Player

	// Number of occupied human slots in the slot table.
	PlayerCount int

	// Sum of the timeslot time deltas.
	ElapsedTime time.Duration

	// Set by NewFromFile or the caller.
	ReplayPath string
	PlayedAt   time.Time
	MapVersion string
}

// Duration returns the replay length declared by the header.
func (m *Match) Duration() time.Duration {
	if m.Header == nil {
		return 0
	}
	return time.Duration(m.Header.Duration) * time.Millisecond
}

// Result returns the match outcome by comparing the round victory counts.
func (m *Match) Result() Result {
	switch {
	case m.TeamOneVictories > m.TeamTwoVictories:
		return TeamOneWin
	case m.TeamOneVictories < m.TeamTwoVictories:
		return TeamTwoWin
	}
	return NoResult
}

// PlayerBySlot returns the player with the given replay slot id, or nil.
func (m *Match) PlayerBySlot(slotID int) *Player {
	for _, p := range m.Players {
		if p.SlotID == slotID {
			return p
		}
	}
	return nil
}

// PlayerByGameID returns the player with the given game id, or nil.
func (m *Match) PlayerByGameID(gameID int) *Player {
	for _, p := range m.Players {
		if p.HasGameID && p.GameID == gameID {
			return p
		}
	}
	return nil
}

// PlayerByName returns the player with the given name, or nil.
func (m *Match) PlayerByName(name string) *Player {
	for _, p := range m.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// inferObservers marks players without a servant as observers.
// A player without a servant but with kills, deaths or assists is an error.
func (m *Match) inferObservers() error {
	for _, p := range m.Players {
		if p.ServantID != "" {
			continue
		}
		if p.Kills != 0 || p.Deaths != 0 || p.Assists != 0 {
			return newError(ErrInconsistentObserverState, -1, "%q has no servant but %d/%d/%d kills/deaths/assists",
				p.Name, p.Kills, p.Deaths, p.Assists)
		}
		p.Observer = true
	}
	return nil
}
