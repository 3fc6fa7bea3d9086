package auth

import (
	"errors"
	"strings"
)

// Role is the closed set of account roles.
type Role int

const (
	RoleUnknown Role = iota
	RoleAdmin
	RoleTeacher
	RoleStudent
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole maps a claim value to a Role. Unrecognised values are an error,
// never a silent fallback to a default role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "teacher":
		return RoleTeacher, nil
	case "student":
		return RoleStudent, nil
	default:
		return RoleUnknown, ErrUnknownRole
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleTeacher:
		return "teacher"
	case RoleStudent:
		return "student"
	default:
		return "unknown"
	}
}

// CanMarkAttendance reports whether the role may submit attendance marks.
func (r Role) CanMarkAttendance() bool {
	switch r {
	case RoleAdmin, RoleTeacher:
		return true
	case RoleStudent, RoleUnknown:
		return false
	default:
		return false
	}
}

// CanViewAllAttendance reports whether the role sees every actor's marks.
func (r Role) CanViewAllAttendance() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleTeacher, RoleStudent, RoleUnknown:
		return false
	default:
		return false
	}
}

// Actor is the authenticated caller of a request.
type Actor struct {
	ID   string
	Role Role
}
