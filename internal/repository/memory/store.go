package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
)

// NumberCodec protects card numbers held by the store
type NumberCodec interface {
	Encode(plaintext string) (string, error)
	Decode(ciphertext string) (string, error)
	Fingerprint(plaintext string) string
}

type state struct {
	users map[int64]models.User
	// cards hold the sealed number; keys index the number for lookup and uniqueness
	cards      map[int64]models.Card
	keys       map[int64]string
	nextUserID int64
	nextCardID int64
}

func (s *state) clone() *state {
	c := &state{
		users:      make(map[int64]models.User, len(s.users)),
		cards:      make(map[int64]models.Card, len(s.cards)),
		keys:       make(map[int64]string, len(s.keys)),
		nextUserID: s.nextUserID,
		nextCardID: s.nextCardID,
	}
	for id, u := range s.users {
		u.Roles = append([]models.Role(nil), u.Roles...)
		c.users[id] = u
	}
	for id, card := range s.cards {
		c.cards[id] = card
	}
	for id, k := range s.keys {
		c.keys[id] = k
	}
	return c
}

func (s *state) deleteCard(id int64) {
	delete(s.cards, id)
	delete(s.keys, id)
}

type faults struct {
	mu       sync.Mutex
	cardSave map[int64]error
}

// Store keeps users and cards in process memory. It is safe for concurrent
// use; transactions are serialised.
type Store struct {
	mu     *sync.Mutex
	st     *state
	inTx   bool
	faults *faults
	codec  NumberCodec
	now    func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithCodec keeps card numbers encrypted in memory, as the database does.
// Without it numbers are held in plaintext.
func WithCodec(codec NumberCodec) Option {
	return func(s *Store) { s.codec = codec }
}

// NewStore returns an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		mu: &sync.Mutex{},
		st: &state{
			users: make(map[int64]models.User),
			cards: make(map[int64]models.Card),
			keys:  make(map[int64]string),
		},
		faults: &faults{cardSave: make(map[int64]error)},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailCardSave makes every later save of card id return err.
// A nil err clears the fault.
func (s *Store) FailCardSave(id int64, err error) {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	if err == nil {
		delete(s.faults.cardSave, id)
		return
	}
	s.faults.cardSave[id] = err
}

func (s *Store) cardSaveFault(id int64) error {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	return s.faults.cardSave[id]
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) numberKey(number string) string {
	if s.codec == nil {
		return number
	}
	return s.codec.Fingerprint(number)
}

func (s *Store) seal(card models.Card) (models.Card, error) {
	if s.codec == nil {
		return card, nil
	}
	sealed, err := s.codec.Encode(card.Number)
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to encrypt card number: %w", err)
	}
	card.Number = sealed
	return card, nil
}

func (s *Store) open(card models.Card) (models.Card, error) {
	if s.codec == nil {
		return card, nil
	}
	number, err := s.codec.Decode(card.Number)
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to decrypt card %d: %w", card.ID, err)
	}
	card.Number = number
	return card, nil
}

func (s *Store) Cards() repository.CardStore { return cardStore{s} }

func (s *Store) Users() repository.UserStore { return userStore{s} }

// WithinTx runs fn on a private copy of the data and publishes the copy
// only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, st: s.st.clone(), inTx: true, faults: s.faults, codec: s.codec, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

func paginate[T any](all []T, page models.PageRequest) models.Page[T] {
	page = page.Normalize()
	total := int64(len(all))
	start := page.Offset()
	if start < 0 || start > len(all) {
		start = len(all)
	}
	end := start + page.Size
	if end > len(all) {
		end = len(all)
	}
	return models.Page[T]{
		Items: append([]T{}, all[start:end]...),
		Page:  page.Page,
		Size:  page.Size,
		Total: total,
	}
}

type cardStore struct{ s *Store }

func (c cardStore) FindByID(_ context.Context, id int64) (models.Card, error) {
	defer c.s.lock()()
	card, ok := c.s.st.cards[id]
	if !ok {
		return models.Card{}, repository.ErrNotFound
	}
	return c.s.open(card)
}

func (c cardStore) FindByIDForUpdate(ctx context.Context, id int64) (models.Card, error) {
	return c.FindByID(ctx, id)
}

func (c cardStore) FindByNumber(_ context.Context, number string) (models.Card, error) {
	defer c.s.lock()()
	key := c.s.numberKey(number)
	for id, k := range c.s.st.keys {
		if k == key {
			return c.s.open(c.s.st.cards[id])
		}
	}
	return models.Card{}, repository.ErrNotFound
}

func (c cardStore) sorted(keep func(models.Card) bool) ([]models.Card, error) {
	out := make([]models.Card, 0)
	for _, card := range c.s.st.cards {
		if !keep(card) {
			continue
		}
		opened, err := c.s.open(card)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c cardStore) FindByOwner(_ context.Context, ownerID int64) ([]models.Card, error) {
	defer c.s.lock()()
	return c.sorted(func(card models.Card) bool { return card.OwnerID == ownerID })
}

func (c cardStore) FindByOwnerPaged(_ context.Context, ownerID int64, page models.PageRequest) (models.Page[models.Card], error) {
	defer c.s.lock()()
	cards, err := c.sorted(func(card models.Card) bool { return card.OwnerID == ownerID })
	if err != nil {
		return models.Page[models.Card]{}, err
	}
	return paginate(cards, page), nil
}

func (c cardStore) FindByStatus(_ context.Context, status models.CardStatus) ([]models.Card, error) {
	defer c.s.lock()()
	return c.sorted(func(card models.Card) bool { return card.Status == status })
}

func (c cardStore) FindAll(_ context.Context, page models.PageRequest) (models.Page[models.Card], error) {
	defer c.s.lock()()
	cards, err := c.sorted(func(models.Card) bool { return true })
	if err != nil {
		return models.Page[models.Card]{}, err
	}
	return paginate(cards, page), nil
}

func (c cardStore) ExistsByID(_ context.Context, id int64) (bool, error) {
	defer c.s.lock()()
	_, ok := c.s.st.cards[id]
	return ok, nil
}

func (c cardStore) Save(_ context.Context, card *models.Card) error {
	if err := c.s.cardSaveFault(card.ID); err != nil {
		return err
	}
	defer c.s.lock()()
	st := c.s.st

	if _, ok := st.users[card.OwnerID]; !ok {
		return repository.ErrNotFound
	}
	key := c.s.numberKey(card.Number)
	for id, k := range st.keys {
		if id != card.ID && k == key {
			return repository.ErrConflict
		}
	}
	if card.ID != 0 {
		if _, ok := st.cards[card.ID]; !ok {
			return repository.ErrNotFound
		}
	}

	now := c.s.now().UTC()
	saved := *card
	if saved.ID == 0 {
		saved.CreatedAt = now
	}
	saved.UpdatedAt = now
	sealed, err := c.s.seal(saved)
	if err != nil {
		return err
	}

	if saved.ID == 0 {
		st.nextCardID++
		sealed.ID = st.nextCardID
		saved.ID = st.nextCardID
	}
	st.cards[saved.ID] = sealed
	st.keys[saved.ID] = key
	*card = saved
	return nil
}

func (c cardStore) DeleteByID(_ context.Context, id int64) error {
	defer c.s.lock()()
	if _, ok := c.s.st.cards[id]; !ok {
		return repository.ErrNotFound
	}
	c.s.st.deleteCard(id)
	return nil
}

func (c cardStore) DeleteByOwner(_ context.Context, ownerID int64) error {
	defer c.s.lock()()
	for id, card := range c.s.st.cards {
		if card.OwnerID == ownerID {
			c.s.st.deleteCard(id)
		}
	}
	return nil
}

type userStore struct{ s *Store }

func (u userStore) FindByID(_ context.Context, id int64) (models.User, error) {
	defer u.s.lock()()
	user, ok := u.s.st.users[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (u userStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	defer u.s.lock()()
	for _, user := range u.s.st.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (u userStore) FindAll(_ context.Context, page models.PageRequest) (models.Page[models.User], error) {
	defer u.s.lock()()
	all := make([]models.User, 0, len(u.s.st.users))
	for _, user := range u.s.st.users {
		all = append(all, user)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, page), nil
}

func (u userStore) ExistsByID(_ context.Context, id int64) (bool, error) {
	defer u.s.lock()()
	_, ok := u.s.st.users[id]
	return ok, nil
}

func (u userStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	defer u.s.lock()()
	for _, user := range u.s.st.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (u userStore) Save(_ context.Context, user *models.User) error {
	defer u.s.lock()()
	st := u.s.st
	for id, other := range st.users {
		if id != user.ID && other.Username == user.Username {
			return repository.ErrConflict
		}
	}
	if user.ID == 0 {
		st.nextUserID++
		user.ID = st.nextUserID
		user.CreatedAt = u.s.now().UTC()
	} else if _, ok := st.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	saved := *user
	saved.Roles = append([]models.Role(nil), user.Roles...)
	st.users[user.ID] = saved
	return nil
}

// DeleteByID removes the user together with every card it owns
func (u userStore) DeleteByID(_ context.Context, id int64) error {
	defer u.s.lock()()
	st := u.s.st
	if _, ok := st.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(st.users, id)
	for cardID, card := range st.cards {
		if card.OwnerID == id {
			st.deleteCard(cardID)
		}
	}
	return nil
}
