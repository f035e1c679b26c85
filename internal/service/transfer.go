package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/policy"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Transfer moves amount from one card of the principal to another. Both
// legs are written in one transaction with the rows locked, so concurrent
// transfers on the same card serialise. A nil amount means none was given.
func (s *CardService) Transfer(ctx context.Context, fromID, toID int64, amount *decimal.Decimal, principal models.Principal) error {
	user, err := s.currentUser(ctx, s.store, principal)
	if err != nil {
		return err
	}
	if amount == nil || !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}

	// An expired leg is corrected to EXPIRED and committed; the transfer is
	// still rejected.
	var rejected error
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		from, to, err := s.lockPair(ctx, tx.Cards(), fromID, toID)
		if err != nil {
			return err
		}

		if err := policy.EnsureOwner(from, user); err != nil {
			return err
		}
		if err := policy.EnsureOwner(to, user); err != nil {
			return err
		}
		if fromID == toID {
			return ErrSameCard
		}

		today := s.today()
		for _, leg := range []*models.Card{&from, &to} {
			if leg.ExpiredOn(today) {
				leg.Status = models.CardExpired
				if err := s.save(ctx, tx.Cards(), leg); err != nil {
					return err
				}
				rejected = ErrCardExpired
				return nil
			}
			if leg.Status != models.CardActive {
				return ErrCardNotActive
			}
		}

		if from.Balance.LessThan(*amount) {
			return ErrInsufficientFunds
		}

		from.Balance = from.Balance.Sub(*amount)
		to.Balance = to.Balance.Add(*amount)
		if err := s.save(ctx, tx.Cards(), &from); err != nil {
			return err
		}
		return s.save(ctx, tx.Cards(), &to)
	})
	if err != nil {
		return err
	}
	if rejected != nil {
		s.log.WithFields(logrus.Fields{"from_card_id": fromID, "to_card_id": toID}).Warn("Transfer rejected, card expired")
		return rejected
	}

	s.log.WithFields(logrus.Fields{
		"from_card_id": fromID,
		"to_card_id":   toID,
		"user_id":      user.ID,
		"amount":       amount.StringFixed(2),
	}).Info("Transfer completed")
	return nil
}

// lockPair loads both legs for update in ascending id order so two
// transfers over the same pair cannot deadlock. Equal ids load one row.
func (s *CardService) lockPair(ctx context.Context, cards repository.CardStore, fromID, toID int64) (models.Card, models.Card, error) {
	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}

	locked := make(map[int64]models.Card, 2)
	missing := make(map[int64]bool, 2)
	ids := []int64{first, second}
	if first == second {
		ids = ids[:1]
	}
	for _, id := range ids {
		card, err := cards.FindByIDForUpdate(ctx, id)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return models.Card{}, models.Card{}, fmt.Errorf("failed to lock card %d: %w", id, err)
			}
			missing[id] = true
			continue
		}
		locked[id] = card
	}
	if missing[fromID] || missing[toID] {
		return models.Card{}, models.Card{}, ErrCardNotFound
	}
	return locked[fromID], locked[toID], nil
}

// GetBalance returns the balance of a card owned by the principal
func (s *CardService) GetBalance(ctx context.Context, cardID int64, principal models.Principal) (decimal.Decimal, error) {
	user, err := s.currentUser(ctx, s.store, principal)
	if err != nil {
		return decimal.Zero, err
	}
	card, err := s.loadCard(ctx, s.store.Cards(), cardID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := policy.EnsureOwner(card, user); err != nil {
		return decimal.Zero, err
	}
	return card.Balance, nil
}
