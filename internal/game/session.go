package game

import (
	"time"

	"github.com/google/uuid"
)

// Session is a hosted game: a Driver with an identity.
type Session struct {
	ID        string
	CreatedAt time.Time
	Daily     string // YYYY-MM-DD for daily games, empty otherwise
	*Driver
}

// NewSession wraps d under a fresh random id.
func NewSession(d *Driver) *Session {
	return &Session{ID: uuid.NewString(), CreatedAt: time.Now().UTC(), Driver: d}
}
