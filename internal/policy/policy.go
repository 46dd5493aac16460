// Package policy maps assignment modes to ownership scopes.
//
// A scope answers two questions for the orchestrator: which existing row
// counts as "this challenge is already running for this owner" (the presence
// key), and which rows block a new creation entirely (the exclusivity key).
package policy

import "fmt"

// Mode selects how instance ownership is scoped.
type Mode string

const (
	// ModeUser grants one instance per user across all challenges.
	ModeUser Mode = "user"
	// ModeTeam grants one instance per team across all challenges.
	ModeTeam Mode = "team"
	// ModeUnlimited grants one instance per (challenge, user) with no
	// cross-challenge exclusivity. This asymmetry is deliberate: practice
	// deployments want parallel instances without contention.
	ModeUnlimited Mode = "unlimited"
)

// ParseMode validates a mode string from the settings store.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUser, ModeTeam, ModeUnlimited:
		return Mode(s), nil
	}
	return "", fmt.Errorf("policy: unknown assignment mode %q", s)
}

// Exclusive reports whether the mode enforces the one-instance-overall rule.
func (m Mode) Exclusive() bool {
	return m == ModeUser || m == ModeTeam
}

// Scope is the resolved ownership scope for one request.
type Scope struct {
	Mode   Mode
	UserID uint
	TeamID uint
}

// OwnerField names the Instance column the owner is matched on.
func (s Scope) OwnerField() string {
	if s.Mode == ModeTeam {
		return "team_id"
	}
	return "user_id"
}

// OwnerID returns the identifier the presence and exclusivity keys use.
func (s Scope) OwnerID() uint {
	if s.Mode == ModeTeam {
		return s.TeamID
	}
	return s.UserID
}
