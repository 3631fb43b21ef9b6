// Package access centralizes the permission rules. There are only two axes,
// approval and admin, but keeping the decisions in one place means handlers
// never compare booleans directly.
package access

type Action string

const (
	// Read covers the catalog, statistics, and other signed-in views.
	Read Action = "read"
	// Write covers ratings, notes, and watch toggles.
	Write Action = "write"
	// Admin covers user management.
	Admin Action = "admin"
)

// Principal is the authenticated identity an action is checked against.
type Principal struct {
	UserID     string
	Username   string
	IsAdmin    bool
	IsApproved bool
}

// Can reports whether the principal may perform the action. Unapproved
// accounts can do nothing; approved accounts read and write; admin actions
// need the admin flag on top of approval.
func Can(p Principal, action Action) bool {
	if !p.IsApproved {
		return false
	}
	switch action {
	case Read, Write:
		return true
	case Admin:
		return p.IsAdmin
	}
	return false
}
