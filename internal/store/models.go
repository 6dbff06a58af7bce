package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type MembershipStatus string

const (
	MembershipInvited  MembershipStatus = "invited"
	MembershipActive   MembershipStatus = "active"
	MembershipArchived MembershipStatus = "archived"
)

type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	AvatarID     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Organization struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrganizationUser struct {
	OrganizationID string
	UserID         string
	Status         MembershipStatus
	CreatedAt      time.Time
}

func (m OrganizationUser) Active() bool {
	return m.Status == MembershipActive
}

type App struct {
	ID             string
	OrganizationID string
	Name           string
	Slug           string
	IsPublic       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
