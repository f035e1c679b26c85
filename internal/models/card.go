package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle state of a card
type CardStatus string

const (
	CardActive         CardStatus = "ACTIVE"
	CardBlocked        CardStatus = "BLOCKED"
	CardExpired        CardStatus = "EXPIRED"
	CardRequestedBlock CardStatus = "REQUESTED_BLOCK"
)

// Valid reports whether s is one of the known statuses
func (s CardStatus) Valid() bool {
	switch s {
	case CardActive, CardBlocked, CardExpired, CardRequestedBlock:
		return true
	}
	return false
}

// Card represents a bank card
type Card struct {
	ID         int64           `json:"id"`
	Number     string          `json:"-"` // Plaintext, encrypted by the store
	ExpiryDate time.Time       `json:"expiry_date"`
	Status     CardStatus      `json:"status"`
	Balance    decimal.Decimal `json:"balance"`
	OwnerID    int64           `json:"owner_id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ExpiredOn reports whether the card expiry date lies strictly before day.
// A card without an expiry date never expires.
func (c Card) ExpiredOn(day time.Time) bool {
	if c.ExpiryDate.IsZero() {
		return false
	}
	return DateOf(c.ExpiryDate).Before(DateOf(day))
}

// DateOf truncates t to midnight UTC of its calendar day
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
