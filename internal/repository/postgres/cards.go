package postgres

import (
	"context"
	"fmt"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/utils"
	"github.com/shopspring/decimal"
)

type cardStore struct {
	q     querier
	codec *utils.CardCodec
}

const cardColumns = `id, number_encrypted, expiry_date, status, balance, user_id, created_at, updated_at`

func (r *cardStore) scan(row rowScanner) (models.Card, error) {
	var (
		c         models.Card
		encrypted string
		status    string
		balance   decimal.NullDecimal
	)
	if err := row.Scan(&c.ID, &encrypted, &c.ExpiryDate, &status, &balance, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.Card{}, err
	}
	number, err := r.codec.Decode(encrypted)
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to decrypt card %d: %w", c.ID, err)
	}
	c.Number = number
	c.Status = models.CardStatus(status)
	c.ExpiryDate = models.DateOf(c.ExpiryDate)
	if balance.Valid {
		c.Balance = balance.Decimal
	}
	return c, nil
}

func (r *cardStore) one(ctx context.Context, query string, args ...any) (models.Card, error) {
	c, err := r.scan(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return models.Card{}, translate(err)
	}
	return c, nil
}

func (r *cardStore) many(ctx context.Context, query string, args ...any) ([]models.Card, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// FindByID retrieves a card by id
func (r *cardStore) FindByID(ctx context.Context, id int64) (models.Card, error) {
	c, err := r.one(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1`, id)
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return c, nil
}

// FindByIDForUpdate retrieves a card and locks its row
func (r *cardStore) FindByIDForUpdate(ctx context.Context, id int64) (models.Card, error) {
	c, err := r.one(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to lock card %d: %w", id, err)
	}
	return c, nil
}

// FindByNumber retrieves a card by its plaintext number via the fingerprint index
func (r *cardStore) FindByNumber(ctx context.Context, number string) (models.Card, error) {
	c, err := r.one(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE number_fingerprint = $1`, r.codec.Fingerprint(number))
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to find card by number: %w", err)
	}
	return c, nil
}

func (r *cardStore) FindByOwner(ctx context.Context, ownerID int64) ([]models.Card, error) {
	cards, err := r.many(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE user_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards of user %d: %w", ownerID, err)
	}
	return cards, nil
}

func (r *cardStore) FindByOwnerPaged(ctx context.Context, ownerID int64, page models.PageRequest) (models.Page[models.Card], error) {
	page = page.Normalize()
	result := models.Page[models.Card]{Page: page.Page, Size: page.Size}

	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.cards WHERE user_id = $1`, ownerID).Scan(&result.Total)
	if err != nil {
		return result, fmt.Errorf("failed to count cards of user %d: %w", ownerID, err)
	}
	result.Items, err = r.many(ctx,
		`SELECT `+cardColumns+` FROM bank.cards WHERE user_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		ownerID, page.Size, page.Offset())
	if err != nil {
		return result, fmt.Errorf("failed to list cards of user %d: %w", ownerID, err)
	}
	return result, nil
}

func (r *cardStore) FindByStatus(ctx context.Context, status models.CardStatus) ([]models.Card, error) {
	cards, err := r.many(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s cards: %w", status, err)
	}
	return cards, nil
}

func (r *cardStore) FindAll(ctx context.Context, page models.PageRequest) (models.Page[models.Card], error) {
	page = page.Normalize()
	result := models.Page[models.Card]{Page: page.Page, Size: page.Size}

	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.cards`).Scan(&result.Total); err != nil {
		return result, fmt.Errorf("failed to count cards: %w", err)
	}
	var err error
	result.Items, err = r.many(ctx, `SELECT `+cardColumns+` FROM bank.cards ORDER BY id LIMIT $1 OFFSET $2`, page.Size, page.Offset())
	if err != nil {
		return result, fmt.Errorf("failed to list cards: %w", err)
	}
	return result, nil
}

func (r *cardStore) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bank.cards WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check card %d: %w", id, err)
	}
	return exists, nil
}

// Save creates or updates a card. The owner is fixed at creation.
func (r *cardStore) Save(ctx context.Context, card *models.Card) error {
	if card.ID == 0 {
		encrypted, err := r.codec.Encode(card.Number)
		if err != nil {
			return fmt.Errorf("failed to encrypt card number: %w", err)
		}
		query := `
			INSERT INTO bank.cards (number_encrypted, number_fingerprint, expiry_date, status, balance, user_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			RETURNING id, created_at, updated_at`
		err = r.q.QueryRowContext(ctx, query,
			encrypted, r.codec.Fingerprint(card.Number), card.ExpiryDate, string(card.Status), card.Balance, card.OwnerID,
		).Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create card: %w", translate(err))
		}
		return nil
	}

	query := `
		UPDATE bank.cards SET expiry_date = $2, status = $3, balance = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.q.QueryRowContext(ctx, query, card.ID, card.ExpiryDate, string(card.Status), card.Balance).Scan(&card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", card.ID, translate(err))
	}
	return nil
}

func (r *cardStore) DeleteByID(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM bank.cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %d: %w", id, err)
	}
	return requireAffected(res, "card", id)
}

func (r *cardStore) DeleteByOwner(ctx context.Context, ownerID int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM bank.cards WHERE user_id = $1`, ownerID); err != nil {
		return fmt.Errorf("failed to delete cards of user %d: %w", ownerID, err)
	}
	return nil
}
