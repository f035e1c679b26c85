package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
	"github.com/shopspring/decimal"
)

// The tests below wipe the bank schema, so they only run against a database
// named explicitly for them.
const testDBEnv = "BANK_TEST_DB_CONN"

func openTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	conn := os.Getenv(testDBEnv)
	if conn == "" {
		t.Skipf("%s not set", testDBEnv)
	}
	db, err := sql.Open("postgres", conn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE bank.cards, bank.users RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	codec, err := utils.NewCardCodec("a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6", "fingerprint-secret")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	return NewStore(db, codec), db
}

func saveUser(t *testing.T, s *Store, name string) models.User {
	t.Helper()
	u := models.User{Username: name, PasswordHash: "hash", Roles: []models.Role{models.RoleAdmin, models.RoleUser}}
	if err := s.Users().Save(context.Background(), &u); err != nil {
		t.Fatalf("save user %s: %v", name, err)
	}
	return u
}

func saveCard(t *testing.T, s *Store, owner models.User, number string, balance int64) models.Card {
	t.Helper()
	c := models.Card{
		Number:     number,
		ExpiryDate: time.Date(2030, 1, 31, 0, 0, 0, 0, time.UTC),
		Status:     models.CardActive,
		Balance:    decimal.NewFromInt(balance),
		OwnerID:    owner.ID,
	}
	if err := s.Cards().Save(context.Background(), &c); err != nil {
		t.Fatalf("save card: %v", err)
	}
	return c
}

func TestUserStoreRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	alice := saveUser(t, s, "alice")

	got, err := s.Users().FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != alice.ID || len(got.Roles) != 2 || got.Roles[0] != models.RoleAdmin {
		t.Fatalf("unexpected user %+v", got)
	}

	got.Username = "alice2"
	got.Roles = []models.Role{models.RoleUser}
	if err := s.Users().Save(ctx, &got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if reloaded, _ := s.Users().FindByID(ctx, alice.ID); reloaded.Username != "alice2" || len(reloaded.Roles) != 1 {
		t.Fatalf("update not persisted: %+v", reloaded)
	}

	dup := models.User{Username: "alice2", PasswordHash: "hash"}
	if err := s.Users().Save(ctx, &dup); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	missing := models.User{ID: 999, Username: "ghost", PasswordHash: "hash"}
	if err := s.Users().Save(ctx, &missing); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update of missing user, got %v", err)
	}
	if err := s.Users().DeleteByID(ctx, 999); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestCardStoreEncryptsAndFindsByNumber(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()
	alice := saveUser(t, s, "alice")
	c := saveCard(t, s, alice, "4000000000000001", 100)

	var stored string
	if err := db.QueryRowContext(ctx, `SELECT number_encrypted FROM bank.cards WHERE id = $1`, c.ID).Scan(&stored); err != nil {
		t.Fatalf("raw read: %v", err)
	}
	if stored == "4000000000000001" {
		t.Fatalf("number stored in plaintext")
	}

	got, err := s.Cards().FindByNumber(ctx, "4000000000000001")
	if err != nil || got.ID != c.ID || got.Number != "4000000000000001" {
		t.Fatalf("lookup by number failed: %+v %v", got, err)
	}
	if !got.ExpiryDate.Equal(c.ExpiryDate) || !got.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected card %+v", got)
	}

	dup := models.Card{Number: "4000000000000001", ExpiryDate: c.ExpiryDate, Status: models.CardActive, OwnerID: alice.ID}
	if err := s.Cards().Save(ctx, &dup); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := s.Cards().FindByNumber(ctx, "4000000000000009"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCardStoreUpdateAndDelete(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	alice := saveUser(t, s, "alice")
	c := saveCard(t, s, alice, "4000000000000001", 100)

	c.Status = models.CardBlocked
	c.Balance = decimal.RequireFromString("12.34")
	if err := s.Cards().Save(ctx, &c); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Cards().FindByID(ctx, c.ID)
	if err != nil || got.Status != models.CardBlocked || got.Balance.StringFixed(2) != "12.34" {
		t.Fatalf("update not persisted: %+v %v", got, err)
	}

	missing := models.Card{ID: 999, Number: "4000000000000009", Status: models.CardActive, OwnerID: alice.ID}
	if err := s.Cards().Save(ctx, &missing); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update of missing card, got %v", err)
	}

	if err := s.Cards().DeleteByID(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Cards().DeleteByID(ctx, c.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCardStorePagingAndCascade(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	alice := saveUser(t, s, "alice")
	bob := saveUser(t, s, "bob")
	saveCard(t, s, alice, "4000000000000001", 0)
	saveCard(t, s, alice, "4000000000000002", 0)
	kept := saveCard(t, s, bob, "4000000000000003", 0)

	page, err := s.Cards().FindByOwnerPaged(ctx, alice.ID, models.PageRequest{Page: 1, Size: 1})
	if err != nil || page.Total != 2 || len(page.Items) != 1 || page.Items[0].Number != "4000000000000002" {
		t.Fatalf("unexpected page %+v %v", page, err)
	}
	page, err = s.Cards().FindAll(ctx, models.PageRequest{Page: models.MaxPage, Size: models.MaxPageSize})
	if err != nil || len(page.Items) != 0 || page.Total != 3 {
		t.Fatalf("far page: %+v %v", page, err)
	}

	if err := s.Users().DeleteByID(ctx, alice.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	all, err := s.Cards().FindAll(ctx, models.PageRequest{})
	if err != nil || all.Total != 1 || all.Items[0].ID != kept.ID {
		t.Fatalf("cards of a deleted user must go: %+v %v", all, err)
	}
}

func TestWithinTxRollsBack(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	alice := saveUser(t, s, "alice")
	c := saveCard(t, s, alice, "4000000000000001", 100)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Cards().FindByIDForUpdate(ctx, c.ID)
		if err != nil {
			return err
		}
		locked.Balance = decimal.Zero
		if err := tx.Cards().Save(ctx, &locked); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got, _ := s.Cards().FindByID(ctx, c.ID); !got.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("rolled back write is visible: %s", got.Balance)
	}
}

func TestFindByIDForUpdateBlocksOtherTransactions(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	alice := saveUser(t, s, "alice")
	c := saveCard(t, s, alice, "4000000000000001", 100)

	locked := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.WithinTx(ctx, func(tx repository.Store) error {
			card, err := tx.Cards().FindByIDForUpdate(ctx, c.ID)
			if err != nil {
				close(locked)
				return err
			}
			close(locked)
			<-release
			card.Balance = card.Balance.Sub(decimal.NewFromInt(30))
			return tx.Cards().Save(ctx, &card)
		})
	}()
	<-locked

	secondBalance := make(chan decimal.Decimal, 1)
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- s.WithinTx(ctx, func(tx repository.Store) error {
			card, err := tx.Cards().FindByIDForUpdate(ctx, c.ID)
			if err != nil {
				return err
			}
			secondBalance <- card.Balance
			return nil
		})
	}()

	select {
	case b := <-secondBalance:
		t.Fatalf("second transaction read %s while the row was locked", b)
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first transaction: %v", err)
	}
	if err := <-secondDone; err != nil {
		t.Fatalf("second transaction: %v", err)
	}
	if b := <-secondBalance; !b.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("second transaction must see the committed balance, got %s", b)
	}
}
