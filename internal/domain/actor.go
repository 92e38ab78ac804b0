package domain

import "strings"

// Role values carried by an Actor.
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// Actor is the explicit caller identity threaded through every engine command.
type Actor struct {
	ID   string
	Role string
}

// IsAdmin reports whether the actor has administrative rights. System actors count as administrative.
func (a Actor) IsAdmin() bool {
	switch strings.ToLower(strings.TrimSpace(a.Role)) {
	case RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// Valid reports whether the actor carries an id and a known role.
func (a Actor) Valid() bool {
	if strings.TrimSpace(a.ID) == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(a.Role)) {
	case RoleUser, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// SystemActor returns the actor used for carrier and fulfillment callbacks.
func SystemActor(id string) Actor {
	id = strings.TrimSpace(id)
	if id == "" {
		id = "system"
	}
	return Actor{ID: id, Role: RoleSystem}
}
