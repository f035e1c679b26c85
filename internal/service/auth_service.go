package service

import (
	"context"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/sirupsen/logrus"
)

// Authenticator issues bearer tokens for valid credentials
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// AuthService handles sign-up and login
type AuthService struct {
	users   *UserService
	gateway Authenticator
	log     *logrus.Logger
}

// NewAuthService initializes a new auth service
func NewAuthService(users *UserService, gateway Authenticator, log *logrus.Logger) *AuthService {
	return &AuthService{users: users, gateway: gateway, log: log}
}

// Register creates a plain user account
func (s *AuthService) Register(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.users.create(ctx, username, password, []models.Role{models.RoleUser})
	if err != nil {
		return models.User{}, err
	}
	s.log.Infof("User registered: %s", user.Username)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	token, err := s.gateway.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	s.log.Infof("User logged in: %s", username)
	return token, nil
}
