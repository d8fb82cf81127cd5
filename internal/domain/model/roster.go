package model

import "strings"

// RosterUser is one row of an uploaded Slack roster export.
type RosterUser struct {
	Username string
	Email    string
	FullName string
	Status   string
}

// IsActiveMemberCandidate reports whether the roster row should be reconciled
// against the member directory. Deactivated accounts and alumni are excluded.
func (u RosterUser) IsActiveMemberCandidate() bool {
	if strings.EqualFold(u.Status, "Deactivated") {
		return false
	}
	return !strings.Contains(u.FullName, "Alumni")
}
