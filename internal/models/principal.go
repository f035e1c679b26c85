package models

// Principal is the authenticated identity behind a request
type Principal struct {
	Username string
	Roles    []Role
}

// HasRole reports whether the principal holds role
func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
