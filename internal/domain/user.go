// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type (
	UserID string

	// ConnectionID identifies one live transport session. A user may hold
	// several connections at once, so this is never equal to UserID.
	ConnectionID string
)

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Participant is the per-connection identity a room sees.
type Participant struct {
	ConnID      ConnectionID `json:"conn_id"`
	UserID      UserID       `json:"user_id,omitempty"`
	DisplayName string       `json:"display_name"`
}

func (p *Participant) SetDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	p.DisplayName = name
	return nil
}
