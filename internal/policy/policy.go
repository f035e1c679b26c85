// Package policy decides whether a principal may act on a card or user record.
package policy

import (
	"github.com/Dan9191/bank-cards/internal/apperror"
	"github.com/Dan9191/bank-cards/internal/models"
)

// ErrForbidden is returned for every authorization failure
var ErrForbidden = apperror.New(apperror.ForbiddenOperation, "")

// RequireRole fails unless the principal holds role
func RequireRole(p models.Principal, role models.Role) error {
	return RequireAnyRole(p, role)
}

// RequireAnyRole fails unless the principal holds at least one of roles
func RequireAnyRole(p models.Principal, roles ...models.Role) error {
	for _, r := range roles {
		if p.HasRole(r) {
			return nil
		}
	}
	return ErrForbidden
}

// EnsureOwner fails unless user owns card. A card without an owner is owned by nobody.
func EnsureOwner(card models.Card, user models.User) error {
	if card.OwnerID == 0 || card.OwnerID != user.ID {
		return ErrForbidden
	}
	return nil
}

// EnsureSelfOrAdmin lets administrators read any user and everyone else only themselves
func EnsureSelfOrAdmin(p models.Principal, caller models.User, targetID int64) error {
	if p.HasRole(models.RoleAdmin) {
		return nil
	}
	if caller.ID != targetID {
		return ErrForbidden
	}
	return nil
}
