// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	MaxNameLen     = 64
	MaxUsernameLen = 36
	MaxBioLen      = 256
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrNameEmpty       = errors.New("name empty")
)

type UserID string

// Avatar points at an image held by the media host.
type Avatar struct {
	PublicID string `json:"publicId"`
	URL      string `json:"url"`
}

type User struct {
	ID        UserID    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Bio       string    `json:"bio,omitempty"`
	Avatar    Avatar    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(name, username string) (*User, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}
	if username == "" {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &User{
		ID:        UserID(uuid.NewString()),
		Name:      name,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}, nil
}
