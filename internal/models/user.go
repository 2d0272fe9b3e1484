package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RolePastor Role = "pastor"
	RoleEditor Role = "editor"
	RoleMember Role = "member"
)

// NormalizeRole maps a stored role value to the canonical enumeration.
// Legacy rows used "leader" for editors and "user" for members; those
// aliases are accepted on read and never written back. Unknown values
// normalize to ("", false).
func NormalizeRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RolePastor:
		return RolePastor, true
	case RoleEditor, Role("leader"):
		return RoleEditor, true
	case RoleMember, Role("user"):
		return RoleMember, true
	default:
		return "", false
	}
}

type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	DisplayName  string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Session struct {
	ID        string
	TokenHash []byte
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
