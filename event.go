package w3g

import (
	"strings"
)

// Separator of the fields of an event detail payload.
const detailSep = "//"

// Max number of detail fields kept from an event key.
const maxDetailFields = 4

// CustomEvent is a map script notification tunneled through a SyncStoredInteger action.
//
// The map broadcasts every occurrence once per connected player,
// so events are identified by ID alone (see eventSet).
type CustomEvent struct {
	// Per-occurrence token generated by the map script.
	ID string

	// Game cache name.
	Cache string

	// Event category, e.g. "Kill" or "ServantSelection".
	Category string

	// Category specific payload, fields separated by "//".
	Detail string

	// Offset of the action in the replay data, for error reporting.
	offset int
}

// newCustomEvent creates an event from the strings of a SyncStoredInteger action.
// The key holds the event id, then the detail: "id/field1//field2//...".
// At most maxDetailFields detail fields are kept.
func newCustomEvent(cache, category, key string) *CustomEvent {
	e := &CustomEvent{Cache: cache, Category: category}

	id, detail, found := strings.Cut(key, "/")
	e.ID = id
	if found {
		fields := strings.SplitN(detail, detailSep, maxDetailFields+1)
		if len(fields) > maxDetailFields {
			fields = fields[:maxDetailFields]
		}
		e.Detail = strings.Join(fields, detailSep)
	}
	return e
}

// Fields returns the detail fields of the event.
func (e *CustomEvent) Fields() []string {
	return strings.Split(e.Detail, detailSep)
}

// eventSet is an insertion ordered set of events keyed by event id.
type eventSet struct {
	ids    map[string]struct{}
	events []*CustomEvent
}

func newEventSet() *eventSet {
	return &eventSet{ids: map[string]struct{}{}}
}

// add inserts e unless an event with the same id is already present,
// and tells if e was inserted.
func (s *eventSet) add(e *CustomEvent) bool {
	if _, ok := s.ids[e.ID]; ok {
		return false
	}
	s.ids[e.ID] = struct{}{}
	s.events = append(s.events, e)
	return true
}

func (s *eventSet) len() int {
	return len(s.events)
}

// Category is the kind of a custom event.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryGameMode
	CategoryPracticeMode
	CategoryRoundVictory
	CategoryServantSelection
	CategoryKill
	CategoryAssist
	CategorySuicide
	CategoryAttribute
	CategoryStat
	CategoryCommandSeal
	CategoryGodsHelp
	CategoryItemBuy
	CategoryDamage
	CategoryLevelUp
	CategoryForfeit
)

var categoryNames = [...]string{
	CategoryUnknown:          "Unknown",
	CategoryGameMode:         "GameMode",
	CategoryPracticeMode:     "PracticeMode",
	CategoryRoundVictory:     "RoundVictory",
	CategoryServantSelection: "ServantSelection",
	CategoryKill:             "Kill",
	CategoryAssist:           "Assist",
	CategorySuicide:          "Suicide",
	CategoryAttribute:        "Attribute",
	CategoryStat:             "Stat",
	CategoryCommandSeal:      "CommandSeal",
	CategoryGodsHelp:         "GodsHelp",
	CategoryItemBuy:          "ItemBuy",
	CategoryDamage:           "Damage",
	CategoryLevelUp:          "LevelUp",
	CategoryForfeit:          "Forfeit",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return categoryNames[CategoryUnknown]
	}
	return categoryNames[c]
}

// ParseCategory returns the category of the given name, CategoryUnknown if there is none.
// Names are case sensitive.
func ParseCategory(name string) Category {
	switch name {
	case "GameMode":
		return CategoryGameMode
	case "PracticeMode":
		return CategoryPracticeMode
	case "RoundVictory":
		return CategoryRoundVictory
	case "ServantSelection":
		return CategoryServantSelection
	case "Kill":
		return CategoryKill
	case "Assist":
		return CategoryAssist
	case "Suicide":
		return CategorySuicide
	case "Attribute":
		return CategoryAttribute
	case "Stat":
		return CategoryStat
	case "CommandSeal":
		return CategoryCommandSeal
	case "GodsHelp":
		return CategoryGodsHelp
	case "ItemBuy":
		return CategoryItemBuy
	case "Damage":
		return CategoryDamage
	case "LevelUp":
		return CategoryLevelUp
	case "Forfeit":
		return CategoryForfeit
	}
	return CategoryUnknown
}
