package model

import "time"

// User represents a registered account
type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose password hash in JSON responses
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Actor is the identity attached to every request: just the id and the
// admin flag, which is everything a permission check needs.
type Actor struct {
	ID      int
	IsAdmin bool
}

// CanModify reports whether the actor may view details of, edit, delete or
// change the status of the given lot: admins always, agents only for lots
// they created.
func CanModify(actor Actor, lot *Lot) bool {
	if actor.IsAdmin {
		return true
	}
	return lot.CreatedBy != nil && *lot.CreatedBy == actor.ID
}
