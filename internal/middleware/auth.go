package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Dan9191/bank-cards/internal/apperror"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/policy"
	"github.com/sirupsen/logrus"
)

type contextKey string

const principalKey contextKey = "principal"

// TokenResolver turns a bearer token into the principal it was issued for
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (models.Principal, error)
}

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a JSON error with the given status
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Code: code, Message: message})
}

// AuthMiddleware validates the bearer token and stores the principal in the
// request context
func AuthMiddleware(resolver TokenResolver, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or malformed bearer token")
				return
			}

			principal, err := resolver.Resolve(r.Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				logger.WithError(err).Debug("Rejected bearer token")
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, if any
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

// RequireRole lets the request through only when the principal holds one of roles
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if err := policy.RequireAnyRole(p, roles...); err != nil {
				kind := apperror.KindOf(err)
				WriteError(w, kind.HTTPStatus(), kind.Code(), kind.Message())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
