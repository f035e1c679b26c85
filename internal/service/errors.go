package service

import (
	"errors"
	"fmt"

	"github.com/Dan9191/bank-cards/internal/apperror"
	"github.com/Dan9191/bank-cards/internal/repository"
)

var (
	ErrUserNotFound      = apperror.New(apperror.UserNotFound, "")
	ErrCardNotFound      = apperror.New(apperror.CardNotFound, "")
	ErrInsufficientFunds = apperror.New(apperror.InsufficientFunds, "")

	ErrDuplicateCard   = apperror.New(apperror.ValidationError, "card number already registered")
	ErrUsernameTaken   = apperror.New(apperror.ValidationError, "username already taken")
	ErrInvalidAmount   = apperror.New(apperror.ValidationError, "amount must be a positive value with at most two decimal places")
	ErrSameCard        = apperror.New(apperror.ValidationError, "source and destination card are the same")
	ErrMissingNumber   = apperror.New(apperror.ValidationError, "card number is required")
	ErrInvalidNumber   = apperror.New(apperror.ValidationError, "card number must contain only digits")
	ErrMissingExpiry   = apperror.New(apperror.ValidationError, "expiry date is required")
	ErrInvalidUsername = apperror.New(apperror.ValidationError, "username must not be blank")
	ErrInvalidPassword = apperror.New(apperror.ValidationError, "password must be at least 8 characters")
	ErrEmptyRoles      = apperror.New(apperror.ValidationError, "role set must not be empty")

	ErrCardExpired   = apperror.New(apperror.ForbiddenOperation, "card expired")
	ErrCardNotActive = apperror.New(apperror.ForbiddenOperation, "card is not active")
)

const minPasswordLength = 8

// notFound maps a missing row onto the given classified error and wraps
// anything else as a storage failure.
func notFound(err error, missing error, action string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return missing
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
