package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Dan9191/bank-cards/internal/apperror"
	"github.com/Dan9191/bank-cards/internal/auth"
	"github.com/Dan9191/bank-cards/internal/middleware"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Handler exposes the card and user operations over HTTP
type Handler struct {
	cards  *service.CardService
	users  *service.UserService
	auth   *service.AuthService
	logger *logrus.Logger
}

func NewHandler(cards *service.CardService, users *service.UserService, authSvc *service.AuthService, logger *logrus.Logger) *Handler {
	return &Handler{cards: cards, users: users, auth: authSvc, logger: logger}
}

// Router builds the /api/v1 route table
func (h *Handler) Router(resolver middleware.TokenResolver) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	authenticated := middleware.AuthMiddleware(resolver, h.logger)
	admin := func(fn http.HandlerFunc) http.Handler {
		return authenticated(middleware.RequireRole(models.RoleAdmin)(fn))
	}
	user := func(fn http.HandlerFunc) http.Handler {
		return authenticated(middleware.RequireRole(models.RoleUser)(fn))
	}
	anyone := func(fn http.HandlerFunc) http.Handler {
		return authenticated(middleware.RequireRole(models.RoleUser, models.RoleAdmin)(fn))
	}

	// Public routes
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)

	// Cards
	api.Handle("/cards", admin(h.CreateCard)).Methods(http.MethodPost)
	api.Handle("/cards/all", admin(h.ListAllCards)).Methods(http.MethodGet)
	api.Handle("/cards/my", user(h.ListMyCards)).Methods(http.MethodGet)
	api.Handle("/cards/my/paged", user(h.ListMyCardsPaged)).Methods(http.MethodGet)
	api.Handle("/cards/transfer", user(h.Transfer)).Methods(http.MethodPost)
	api.Handle("/cards/{id:[0-9]+}", admin(h.DeleteCard)).Methods(http.MethodDelete)
	api.Handle("/cards/{id:[0-9]+}/block", admin(h.BlockCard)).Methods(http.MethodPost)
	api.Handle("/cards/{id:[0-9]+}/activate", admin(h.ActivateCard)).Methods(http.MethodPost)
	api.Handle("/cards/{id:[0-9]+}/request-block", user(h.RequestBlock)).Methods(http.MethodPost)
	api.Handle("/cards/{id:[0-9]+}/balance", user(h.GetBalance)).Methods(http.MethodGet)

	// Users
	api.Handle("/users", admin(h.CreateUser)).Methods(http.MethodPost)
	api.Handle("/users", admin(h.ListUsers)).Methods(http.MethodGet)
	api.Handle("/users/{id:[0-9]+}", admin(h.UpdateUser)).Methods(http.MethodPut)
	api.Handle("/users/{id:[0-9]+}", admin(h.DeleteUser)).Methods(http.MethodDelete)
	api.Handle("/users/{id:[0-9]+}", anyone(h.GetProfile)).Methods(http.MethodGet)

	return r
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

// fail maps err to its public code and status. Details only reach the log.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	entry := h.logger.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).WithError(err)
	if errors.Is(err, auth.ErrAuthFailure) {
		entry.Warn("Authentication failed")
		middleware.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid username or password")
		return
	}

	kind := apperror.KindOf(err)
	if kind == apperror.InternalError {
		entry.Error("Request failed")
	} else {
		entry.WithField("code", kind.Code()).Warn("Request rejected")
	}
	middleware.WriteError(w, kind.HTTPStatus(), kind.Code(), kind.Message())
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.Wrap(apperror.ValidationError, "malformed request body", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, apperror.Wrap(apperror.ValidationError, "invalid id", err)
	}
	return id, nil
}

func pageRequest(r *http.Request) (models.PageRequest, error) {
	var page models.PageRequest
	q := r.URL.Query()
	for key, dst := range map[string]*int{"page": &page.Page, "size": &page.Size} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || (key == "page" && n > models.MaxPage) {
			return models.PageRequest{}, apperror.New(apperror.ValidationError, fmt.Sprintf("invalid %s %q", key, raw))
		}
		*dst = n
	}
	return page.Normalize(), nil
}

// principal is set by the auth middleware on every protected route
func principal(r *http.Request) models.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}
