// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// Peer is a participant identity as exchanged on the wire.
type Peer struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

// NewPeer validates the display name and assigns a fresh id.
func NewPeer(name string) (*Peer, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Peer{ID: UserID(uuid.NewString()), Name: strings.TrimSpace(name)}, nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
