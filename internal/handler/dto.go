package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dan9191/bank-cards/internal/apperror"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Date is a calendar day encoded as YYYY-MM-DD
type Date struct{ time.Time }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", d.Format(dateLayout))), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return apperror.Wrap(apperror.ValidationError, "expiry date must be YYYY-MM-DD", err)
	}
	d.Time = t
	return nil
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type createCardRequest struct {
	UserID     int64  `json:"user_id"`
	Number     string `json:"number"`
	ExpiryDate Date   `json:"expiry_date"`
}

type transferRequest struct {
	FromCardID int64            `json:"from_card_id"`
	ToCardID   int64            `json:"to_card_id"`
	Amount     *decimal.Decimal `json:"amount"`
}

type cardResponse struct {
	ID           int64             `json:"id"`
	MaskedNumber string            `json:"masked_number"`
	OwnerID      int64             `json:"owner_id"`
	ExpiryDate   Date              `json:"expiry_date"`
	Status       models.CardStatus `json:"status"`
	Balance      string            `json:"balance"`
}

func toCardResponse(c models.Card) cardResponse {
	return cardResponse{
		ID:           c.ID,
		MaskedNumber: service.MaskNumber(c.Number),
		OwnerID:      c.OwnerID,
		ExpiryDate:   Date{c.ExpiryDate},
		Status:       c.Status,
		Balance:      c.Balance.StringFixed(2),
	}
}

type balanceResponse struct {
	CardID  int64  `json:"card_id"`
	Balance string `json:"balance"`
}

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

// updateUserRequest leaves a field untouched when it is absent
type updateUserRequest struct {
	Username *string   `json:"username"`
	Password *string   `json:"password"`
	Roles    *[]string `json:"roles"`
}

func (u updateUserRequest) toUpdate() models.UserUpdate {
	return models.UserUpdate{
		Username: models.FromPtr(u.Username),
		Password: models.FromPtr(u.Password),
		Roles:    models.FromPtr(u.Roles),
	}
}

type userResponse struct {
	ID        int64         `json:"id"`
	Username  string        `json:"username"`
	Roles     []models.Role `json:"roles"`
	CreatedAt time.Time     `json:"created_at"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Roles: u.Roles, CreatedAt: u.CreatedAt}
}
