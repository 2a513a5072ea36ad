// Package validate decides whether a decoded match is eligible for the ranking statistics.
package validate

import (
	"fmt"
	"time"

	"github.com/ufw/w3g"
)

// Rules are the eligibility rules of a match.
type Rules struct {
	// Only deathmatch games are ranked.
	RequireDeathmatch bool

	// Practice mode games are not ranked.
	RejectPractice bool

	// Min. replay length; 0 disables the check.
	MinDuration time.Duration
}

// Default returns the rules of the ranking system: deathmatch only, no practice games,
// any duration.
func Default() Rules {
	return Rules{
		RequireDeathmatch: true,
		RejectPractice:    true,
	}
}

// Rejection tells why a match is not eligible.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return "match rejected: " + r.Reason
}

// Check returns a *Rejection naming the first rule the match fails, nil if it is eligible.
func (r Rules) Check(m *w3g.Match) error {
	if r.RequireDeathmatch && m.Mode != w3g.Deathmatch {
		return &Rejection{Reason: fmt.Sprintf("%s game, not deathmatch", m.Mode)}
	}
	if r.RejectPractice && m.Practice {
		return &Rejection{Reason: "practice mode"}
	}
	if r.MinDuration > 0 && m.Duration() < r.MinDuration {
		return &Rejection{Reason: fmt.Sprintf("duration %v shorter than %v", m.Duration(), r.MinDuration)}
	}
	return nil
}
