package repository

import (
	"context"
	"errors"

	"github.com/Dan9191/bank-cards/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint would be violated
	ErrConflict = errors.New("record conflicts with an existing one")
)

// CardStore persists cards. Numbers cross this boundary in plaintext.
type CardStore interface {
	FindByID(ctx context.Context, id int64) (models.Card, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, id int64) (models.Card, error)
	FindByNumber(ctx context.Context, number string) (models.Card, error)
	FindByOwner(ctx context.Context, ownerID int64) ([]models.Card, error)
	FindByOwnerPaged(ctx context.Context, ownerID int64, page models.PageRequest) (models.Page[models.Card], error)
	FindByStatus(ctx context.Context, status models.CardStatus) ([]models.Card, error)
	FindAll(ctx context.Context, page models.PageRequest) (models.Page[models.Card], error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
	// Save inserts a card with a zero ID and updates it otherwise
	Save(ctx context.Context, card *models.Card) error
	DeleteByID(ctx context.Context, id int64) error
	DeleteByOwner(ctx context.Context, ownerID int64) error
}

// UserStore persists users
type UserStore interface {
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindAll(ctx context.Context, page models.PageRequest) (models.Page[models.User], error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	// Save inserts a user with a zero ID and updates it otherwise
	Save(ctx context.Context, user *models.User) error
	DeleteByID(ctx context.Context, id int64) error
}

// Store groups the repositories and runs work atomically
type Store interface {
	Cards() CardStore
	Users() UserStore
	// WithinTx runs fn against a transactional view of the store. Everything
	// fn writes is committed when it returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
