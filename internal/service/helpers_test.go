package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository/memory"
	"github.com/Dan9191/bank-cards/internal/utils/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var fixedNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

var (
	yesterday = time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC)
	nextYear  = time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []email.BlockRequest
	err  error
}

func (n *recordingNotifier) BlockRequested(_ context.Context, req email.BlockRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, req)
	return n.err
}

type fixture struct {
	store    *memory.Store
	cards    *CardService
	users    *UserService
	notifier *recordingNotifier
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	notifier := &recordingNotifier{}
	cards := NewCardService(store, quietLogger(), notifier)
	cards.now = func() time.Time { return fixedNow }
	return &fixture{
		store:    store,
		cards:    cards,
		users:    NewUserService(store, quietLogger()),
		notifier: notifier,
	}
}

func (f *fixture) user(t *testing.T, name string) (models.User, models.Principal) {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), name, "password123", nil)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u, models.Principal{Username: u.Username, Roles: u.Roles}
}

// card inserts a card directly so tests can pick any status and balance
func (f *fixture) card(t *testing.T, owner models.User, number string, status models.CardStatus, balance int64, expiry time.Time) models.Card {
	t.Helper()
	c := models.Card{
		Number:     number,
		ExpiryDate: expiry,
		Status:     status,
		Balance:    decimal.NewFromInt(balance),
		OwnerID:    owner.ID,
	}
	if err := f.store.Cards().Save(context.Background(), &c); err != nil {
		t.Fatalf("save card: %v", err)
	}
	return c
}

func (f *fixture) reload(t *testing.T, id int64) models.Card {
	t.Helper()
	c, err := f.store.Cards().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload card %d: %v", id, err)
	}
	return c
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
