package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role is a granted authority. The set of known roles is closed.
type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

const rolePrefix = "ROLE_"

var knownRoles = map[Role]struct{}{
	RoleUser:  {},
	RoleAdmin: {},
}

// ErrUnknownRole is returned when a role token does not map to a known role
var ErrUnknownRole = errors.New("unknown role")

// ParseRole maps a request token such as "admin" or "ROLE_ADMIN" to a Role
func ParseRole(token string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(token))
	if name == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnknownRole)
	}
	if !strings.HasPrefix(name, rolePrefix) {
		name = rolePrefix + name
	}
	role := Role(name)
	if _, ok := knownRoles[role]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, token)
	}
	return role, nil
}

// ParseRoles maps every token, dropping duplicates. The result is sorted.
func ParseRoles(tokens []string) ([]Role, error) {
	seen := make(map[Role]struct{}, len(tokens))
	roles := make([]Role, 0, len(tokens))
	for _, t := range tokens {
		role, err := ParseRole(t)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles, nil
}

// User represents a user in the system
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Not serialized
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasRole reports whether the user was granted role
func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserUpdate carries the fields an administrator wants to change.
// Unset fields are left as they are.
type UserUpdate struct {
	Username Optional[string]
	Password Optional[string]
	Roles    Optional[[]string]
}
