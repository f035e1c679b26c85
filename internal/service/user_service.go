package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dan9191/bank-cards/internal/apperror"
	"github.com/Dan9191/bank-cards/internal/auth"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/policy"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/sirupsen/logrus"
)

// UserService provisions and maintains user accounts
type UserService struct {
	store repository.Store
	log   *logrus.Logger
}

// NewUserService initializes a new user service
func NewUserService(store repository.Store, log *logrus.Logger) *UserService {
	return &UserService{store: store, log: log}
}

// CreateUser creates a user with the given role tokens; none means ROLE_USER
func (s *UserService) CreateUser(ctx context.Context, username, password string, roles []string) (models.User, error) {
	mapped, err := mapRoles(roles)
	if err != nil {
		return models.User{}, err
	}
	if len(mapped) == 0 {
		mapped = []models.Role{models.RoleUser}
	}
	return s.create(ctx, username, password, mapped)
}

func (s *UserService) create(ctx context.Context, username, password string, roles []models.Role) (models.User, error) {
	if strings.TrimSpace(username) == "" {
		return models.User{}, ErrInvalidUsername
	}
	if len(password) < minPasswordLength {
		return models.User{}, ErrInvalidPassword
	}

	taken, err := s.store.Users().ExistsByUsername(ctx, username)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return models.User{}, ErrUsernameTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	user := models.User{Username: username, PasswordHash: hash, Roles: roles}
	if err := s.store.Users().Save(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "roles": user.Roles}).Info("User created")
	return user, nil
}

// UpdateUser applies the set fields of upd to user id
func (s *UserService) UpdateUser(ctx context.Context, id int64, upd models.UserUpdate) (models.User, error) {
	user, err := s.store.Users().FindByID(ctx, id)
	if err != nil {
		return models.User{}, notFound(err, ErrUserNotFound, "load user")
	}

	if upd.Username.Set {
		username := upd.Username.Value
		if strings.TrimSpace(username) == "" {
			return models.User{}, ErrInvalidUsername
		}
		if username != user.Username {
			taken, err := s.store.Users().ExistsByUsername(ctx, username)
			if err != nil {
				return models.User{}, fmt.Errorf("failed to check username: %w", err)
			}
			if taken {
				return models.User{}, ErrUsernameTaken
			}
			user.Username = username
		}
	}

	if upd.Password.Set {
		if len(upd.Password.Value) < minPasswordLength {
			return models.User{}, ErrInvalidPassword
		}
		hash, err := auth.HashPassword(upd.Password.Value)
		if err != nil {
			return models.User{}, err
		}
		user.PasswordHash = hash
	}

	if upd.Roles.Set {
		roles, err := mapRoles(upd.Roles.Value)
		if err != nil {
			return models.User{}, err
		}
		if len(roles) == 0 {
			return models.User{}, ErrEmptyRoles
		}
		user.Roles = roles
	}

	if err := s.store.Users().Save(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, notFound(err, ErrUserNotFound, "update user")
	}
	s.log.WithField("user_id", user.ID).Info("User updated")
	return user, nil
}

// DeleteUser removes a user and every card it owns in one transaction
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		exists, err := tx.Users().ExistsByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if !exists {
			return ErrUserNotFound
		}
		if err := tx.Cards().DeleteByOwner(ctx, id); err != nil {
			return fmt.Errorf("failed to delete cards of user %d: %w", id, err)
		}
		if err := tx.Users().DeleteByID(ctx, id); err != nil {
			return notFound(err, ErrUserNotFound, "delete user")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.WithField("user_id", id).Info("User deleted")
	return nil
}

// ListUsers pages through every user
func (s *UserService) ListUsers(ctx context.Context, page models.PageRequest) (models.Page[models.User], error) {
	users, err := s.store.Users().FindAll(ctx, page)
	if err != nil {
		return models.Page[models.User]{}, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// GetProfile returns user id. Non-administrators may only read themselves.
func (s *UserService) GetProfile(ctx context.Context, principal models.Principal, id int64) (models.User, error) {
	caller, err := s.store.Users().FindByUsername(ctx, principal.Username)
	if err != nil {
		return models.User{}, notFound(err, ErrUserNotFound, "load current user")
	}
	if err := policy.EnsureSelfOrAdmin(principal, caller, id); err != nil {
		return models.User{}, err
	}
	if caller.ID == id {
		return caller, nil
	}
	user, err := s.store.Users().FindByID(ctx, id)
	if err != nil {
		return models.User{}, notFound(err, ErrUserNotFound, "load user")
	}
	return user, nil
}

// EnsureAdmin creates an administrator named username unless that user exists
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	exists, err := s.store.Users().ExistsByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil
	}
	_, err = s.create(ctx, username, password, []models.Role{models.RoleAdmin, models.RoleUser})
	return err
}

func mapRoles(tokens []string) ([]models.Role, error) {
	roles, err := models.ParseRoles(tokens)
	if err != nil {
		return nil, apperror.Wrap(apperror.ValidationError, "unknown role", err)
	}
	return roles, nil
}
