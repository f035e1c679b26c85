package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository/memory"
	"github.com/Dan9191/bank-cards/internal/utils/email"
	"github.com/sirupsen/logrus"
)

type recordingMailer struct {
	calls [][]email.BlockRequest
	err   error
}

func (m *recordingMailer) PendingBlockDigest(_ context.Context, pending []email.BlockRequest) error {
	m.calls = append(m.calls, pending)
	return m.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func seed(t *testing.T, store *memory.Store) models.User {
	t.Helper()
	ctx := context.Background()
	u := models.User{Username: "alice", PasswordHash: "x", Roles: []models.Role{models.RoleUser}}
	if err := store.Users().Save(ctx, &u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	for i, status := range []models.CardStatus{models.CardActive, models.CardRequestedBlock, models.CardBlocked, models.CardRequestedBlock} {
		c := models.Card{
			Number:     "400000000000000" + string(rune('1'+i)),
			ExpiryDate: time.Now().AddDate(1, 0, 0),
			Status:     status,
			OwnerID:    u.ID,
		}
		if err := store.Cards().Save(ctx, &c); err != nil {
			t.Fatalf("save card: %v", err)
		}
	}
	return u
}

func TestRunOnceMailsPendingCards(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)
	mailer := &recordingMailer{}

	d := NewDigest(store, mailer, quietLogger(), "@daily")
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mailer.calls) != 1 || len(mailer.calls[0]) != 2 {
		t.Fatalf("expected one digest with two cards, got %+v", mailer.calls)
	}
	for _, p := range mailer.calls[0] {
		if p.Username != "alice" {
			t.Fatalf("expected owner alice, got %q", p.Username)
		}
		if p.MaskedNumber[:4] != "****" {
			t.Fatalf("number must be masked, got %q", p.MaskedNumber)
		}
	}

	page, _ := store.Cards().FindAll(context.Background(), models.PageRequest{})
	requested := 0
	for _, c := range page.Items {
		if c.Status == models.CardRequestedBlock {
			requested++
		}
	}
	if requested != 2 {
		t.Fatalf("digest must not change card state")
	}
}

func TestRunOnceSkipsEmptyQueue(t *testing.T) {
	mailer := &recordingMailer{}
	d := NewDigest(memory.NewStore(), mailer, quietLogger(), "@daily")
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mailer.calls) != 0 {
		t.Fatalf("expected no mail, got %d", len(mailer.calls))
	}
}

func TestRunOnceReportsMailerFailure(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)
	boom := errors.New("smtp down")
	d := NewDigest(store, &recordingMailer{err: boom}, quietLogger(), "@daily")
	if err := d.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected mailer error, got %v", err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	d := NewDigest(memory.NewStore(), &recordingMailer{}, quietLogger(), "not a schedule")
	if err := d.Start(); err == nil {
		d.Stop()
		t.Fatalf("expected schedule error")
	}
}
