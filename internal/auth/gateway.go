package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrAuthFailure is returned for any credential mismatch
	ErrAuthFailure = errors.New("invalid credentials")
	// ErrInvalidToken is returned when a bearer token cannot be trusted
	ErrInvalidToken = errors.New("invalid token")
)

// Gateway verifies credentials and issues and resolves bearer tokens
type Gateway struct {
	users  repository.UserStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewGateway initializes a new gateway
func NewGateway(users repository.UserStore, secret string, ttl time.Duration) *Gateway {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Gateway{users: users, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// HashPassword hashes a plaintext password
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword reports whether password matches hash
func ComparePassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticate checks credentials and returns a signed token
func (g *Gateway) Authenticate(ctx context.Context, username, password string) (string, error) {
	user, err := g.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrAuthFailure
		}
		return "", err
	}
	if !ComparePassword(user.PasswordHash, password) {
		return "", ErrAuthFailure
	}
	return g.IssueToken(user.Username)
}

// IssueToken signs a token for username
func (g *Gateway) IssueToken(username string) (string, error) {
	now := g.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
	})
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, nil
}

// Resolve verifies token and loads the principal behind it.
// Roles come from the store, not from the token.
func (g *Gateway) Resolve(ctx context.Context, token string) (models.Principal, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return models.Principal{}, ErrInvalidToken
	}

	user, err := g.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Principal{}, ErrInvalidToken
		}
		return models.Principal{}, err
	}
	return models.Principal{Username: user.Username, Roles: user.Roles}, nil
}
