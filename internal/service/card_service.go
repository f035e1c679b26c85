package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/policy"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Notifier is told about block requests so an administrator can act on them
type Notifier interface {
	BlockRequested(ctx context.Context, req email.BlockRequest) error
}

type noopNotifier struct{}

func (noopNotifier) BlockRequested(context.Context, email.BlockRequest) error { return nil }

// CardService runs the card lifecycle and transfers between cards
type CardService struct {
	store    repository.Store
	log      *logrus.Logger
	notifier Notifier
	now      func() time.Time
}

// NewCardService initializes a new card service. A nil notifier disables notices.
func NewCardService(store repository.Store, log *logrus.Logger, notifier Notifier) *CardService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &CardService{store: store, log: log, notifier: notifier, now: time.Now}
}

func (s *CardService) today() time.Time {
	return models.DateOf(s.now())
}

// CreateCard issues a card to an existing user
func (s *CardService) CreateCard(ctx context.Context, ownerID int64, rawNumber string, expiry time.Time) (models.Card, error) {
	number := strings.TrimSpace(rawNumber)
	if number == "" {
		return models.Card{}, ErrMissingNumber
	}
	if !allDigits(number) {
		return models.Card{}, ErrInvalidNumber
	}
	if expiry.IsZero() {
		return models.Card{}, ErrMissingExpiry
	}

	if _, err := s.store.Users().FindByID(ctx, ownerID); err != nil {
		return models.Card{}, notFound(err, ErrUserNotFound, "load card owner")
	}

	_, err := s.store.Cards().FindByNumber(ctx, number)
	switch {
	case err == nil:
		return models.Card{}, ErrDuplicateCard
	case !errors.Is(err, repository.ErrNotFound):
		return models.Card{}, fmt.Errorf("failed to check card number: %w", err)
	}

	card := models.Card{
		Number:     number,
		ExpiryDate: models.DateOf(expiry),
		Status:     models.CardActive,
		Balance:    decimal.Zero,
		OwnerID:    ownerID,
	}
	if card.ExpiredOn(s.today()) {
		card.Status = models.CardExpired
	}

	if err := s.store.Cards().Save(ctx, &card); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return models.Card{}, ErrDuplicateCard
		}
		return models.Card{}, fmt.Errorf("failed to create card: %w", err)
	}

	s.log.WithFields(logrus.Fields{"card_id": card.ID, "user_id": ownerID, "status": card.Status}).Info("Card created")
	return card, nil
}

// BlockCard moves a card to BLOCKED whatever its current state
func (s *CardService) BlockCard(ctx context.Context, cardID int64) (models.Card, error) {
	card, err := s.loadCard(ctx, s.store.Cards(), cardID)
	if err != nil {
		return models.Card{}, err
	}
	card.Status = models.CardBlocked
	if err := s.save(ctx, s.store.Cards(), &card); err != nil {
		return models.Card{}, err
	}
	s.log.WithField("card_id", card.ID).Info("Card blocked")
	return card, nil
}

// ActivateCard moves a card to ACTIVE. An expired card is marked EXPIRED
// and the activation is rejected; the EXPIRED status is still persisted.
func (s *CardService) ActivateCard(ctx context.Context, cardID int64) (models.Card, error) {
	card, err := s.loadCard(ctx, s.store.Cards(), cardID)
	if err != nil {
		return models.Card{}, err
	}

	if card.ExpiredOn(s.today()) {
		card.Status = models.CardExpired
		if err := s.save(ctx, s.store.Cards(), &card); err != nil {
			return models.Card{}, err
		}
		s.log.WithField("card_id", card.ID).Warn("Activation rejected, card expired")
		return models.Card{}, ErrCardExpired
	}

	card.Status = models.CardActive
	if err := s.save(ctx, s.store.Cards(), &card); err != nil {
		return models.Card{}, err
	}
	s.log.WithField("card_id", card.ID).Info("Card activated")
	return card, nil
}

// RequestBlock lets the owner of an active card ask for it to be blocked
func (s *CardService) RequestBlock(ctx context.Context, cardID int64, principal models.Principal) (models.Card, error) {
	user, err := s.currentUser(ctx, s.store, principal)
	if err != nil {
		return models.Card{}, err
	}
	card, err := s.loadCard(ctx, s.store.Cards(), cardID)
	if err != nil {
		return models.Card{}, err
	}
	if err := policy.EnsureOwner(card, user); err != nil {
		return models.Card{}, err
	}

	if card.ExpiredOn(s.today()) {
		return models.Card{}, ErrCardExpired
	}
	if card.Status != models.CardActive {
		return models.Card{}, ErrCardNotActive
	}

	card.Status = models.CardRequestedBlock
	if err := s.save(ctx, s.store.Cards(), &card); err != nil {
		return models.Card{}, err
	}
	s.log.WithFields(logrus.Fields{"card_id": card.ID, "user_id": user.ID}).Info("Card block requested")

	notice := email.BlockRequest{
		CardID:       card.ID,
		MaskedNumber: MaskNumber(card.Number),
		Username:     user.Username,
		RequestedAt:  s.now(),
	}
	if err := s.notifier.BlockRequested(ctx, notice); err != nil {
		s.log.WithError(err).WithField("card_id", card.ID).Warn("Block request notice not delivered")
	}
	return card, nil
}

// DeleteCard removes a card permanently
func (s *CardService) DeleteCard(ctx context.Context, cardID int64) error {
	exists, err := s.store.Cards().ExistsByID(ctx, cardID)
	if err != nil {
		return fmt.Errorf("failed to check card: %w", err)
	}
	if !exists {
		return ErrCardNotFound
	}
	if err := s.store.Cards().DeleteByID(ctx, cardID); err != nil {
		return notFound(err, ErrCardNotFound, "delete card")
	}
	s.log.WithField("card_id", cardID).Info("Card deleted")
	return nil
}

// ListAll pages through every card
func (s *CardService) ListAll(ctx context.Context, page models.PageRequest) (models.Page[models.Card], error) {
	cards, err := s.store.Cards().FindAll(ctx, page)
	if err != nil {
		return models.Page[models.Card]{}, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// ListMine returns every card of the principal
func (s *CardService) ListMine(ctx context.Context, principal models.Principal) ([]models.Card, error) {
	user, err := s.currentUser(ctx, s.store, principal)
	if err != nil {
		return nil, err
	}
	cards, err := s.store.Cards().FindByOwner(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// ListMinePaged pages through the cards of the principal
func (s *CardService) ListMinePaged(ctx context.Context, principal models.Principal, page models.PageRequest) (models.Page[models.Card], error) {
	user, err := s.currentUser(ctx, s.store, principal)
	if err != nil {
		return models.Page[models.Card]{}, err
	}
	cards, err := s.store.Cards().FindByOwnerPaged(ctx, user.ID, page)
	if err != nil {
		return models.Page[models.Card]{}, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// MaskNumber hides all but the last four digits of a card number
func MaskNumber(number string) string {
	runes := []rune(number)
	if len(runes) < 4 {
		return "****"
	}
	return "**** **** **** " + string(runes[len(runes)-4:])
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *CardService) currentUser(ctx context.Context, store repository.Store, principal models.Principal) (models.User, error) {
	user, err := store.Users().FindByUsername(ctx, principal.Username)
	if err != nil {
		return models.User{}, notFound(err, ErrUserNotFound, "load current user")
	}
	return user, nil
}

func (s *CardService) loadCard(ctx context.Context, cards repository.CardStore, id int64) (models.Card, error) {
	card, err := cards.FindByID(ctx, id)
	if err != nil {
		return models.Card{}, notFound(err, ErrCardNotFound, "load card")
	}
	return card, nil
}

func (s *CardService) save(ctx context.Context, cards repository.CardStore, card *models.Card) error {
	if err := cards.Save(ctx, card); err != nil {
		return fmt.Errorf("failed to save card %d: %w", card.ID, err)
	}
	return nil
}
