// Package memstore is an in-process ledger store used by tests and by the
// memory store driver. A unit of work holds the store lock from BeginTx until
// Commit or Rollback and works on a copy of the data, so units of work are
// serializable and a rolled back one leaves no trace.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/repository"
)

type data struct {
	seq         int64
	users       map[int64]models.User
	cards       map[int64]models.Card
	purchases   map[int64]models.Purchase
	withdrawals map[int64]models.WithdrawalRequest
}

func (d *data) clone() *data {
	c := &data{
		seq:         d.seq,
		users:       make(map[int64]models.User, len(d.users)),
		cards:       make(map[int64]models.Card, len(d.cards)),
		purchases:   make(map[int64]models.Purchase, len(d.purchases)),
		withdrawals: make(map[int64]models.WithdrawalRequest, len(d.withdrawals)),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.cards {
		c.cards[k] = v
	}
	for k, v := range d.purchases {
		c.purchases[k] = v
	}
	for k, v := range d.withdrawals {
		c.withdrawals[k] = v
	}
	return c
}

type Store struct {
	mu   sync.Mutex
	data *data
	now  func() time.Time
}

func New() *Store {
	return &Store{
		data: &data{
			users:       map[int64]models.User{},
			cards:       map[int64]models.Card{},
			purchases:   map[int64]models.Purchase{},
			withdrawals: map[int64]models.WithdrawalRequest{},
		},
		now: time.Now,
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) BeginTx(ctx context.Context) (repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.NewInternal("memstore.BeginTx", err)
	}
	s.mu.Lock()
	return &tx{store: s, data: s.data.clone()}, nil
}

type tx struct {
	store *Store
	data  *data
	done  bool
}

func (t *tx) Commit() error {
	if t.done {
		return apperr.NewInternal("memstore.Commit", errTxDone)
	}
	t.store.data = t.data
	t.finish()
	return nil
}

func (t *tx) Rollback() error {
	if !t.done {
		t.finish()
	}
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.store.mu.Unlock()
}

func (t *tx) nextID() int64 {
	t.data.seq++
	return t.data.seq
}

func (t *tx) now() time.Time {
	// Postgres timestamps carry microseconds; keep ordering comparable.
	return t.store.now().Truncate(time.Microsecond)
}

// User methods

func (t *tx) GetUserByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	for _, u := range t.data.users {
		if u.TelegramID == telegramID {
			return &u, nil
		}
	}
	return nil, apperr.NewNotFound("memstore.GetUserByTelegramID", "user")
}

func (t *tx) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := t.data.users[id]
	if !ok {
		return nil, apperr.NewNotFound("memstore.GetUser", "user")
	}
	return &u, nil
}

// GetUserForUpdate is GetUser; the unit of work already holds the store lock.
func (t *tx) GetUserForUpdate(ctx context.Context, id int64) (*models.User, error) {
	return t.GetUser(ctx, id)
}

func (t *tx) CreateUser(ctx context.Context, user *models.User) (bool, error) {
	if _, err := t.GetUserByTelegramID(ctx, user.TelegramID); err == nil {
		return false, nil
	}
	user.ID = t.nextID()
	user.Balance = decimal.Zero
	user.CreatedAt = t.now()
	t.data.users[user.ID] = *user
	return true, nil
}

func (t *tx) SetUserAdmin(_ context.Context, id int64, isAdmin bool) error {
	u, ok := t.data.users[id]
	if !ok {
		return apperr.NewNotFound("memstore.SetUserAdmin", "user")
	}
	u.IsAdmin = isAdmin
	t.data.users[id] = u
	return nil
}

func (t *tx) SyncAdmins(_ context.Context, telegramIDs []int64) (int64, error) {
	listed := make(map[int64]bool, len(telegramIDs))
	for _, id := range telegramIDs {
		listed[id] = true
	}
	var changed int64
	for id, u := range t.data.users {
		if u.IsAdmin != listed[u.TelegramID] {
			u.IsAdmin = listed[u.TelegramID]
			t.data.users[id] = u
			changed++
		}
	}
	return changed, nil
}

func (t *tx) AddBalance(_ context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	u, ok := t.data.users[userID]
	if !ok {
		return decimal.Zero, apperr.NewNotFound("memstore.AddBalance", "user")
	}
	next := u.Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, apperr.ErrInsufficientFunds.At("memstore.AddBalance")
	}
	u.Balance = next
	t.data.users[userID] = u
	return next, nil
}

// Card methods

func (t *tx) withOwner(c models.Card) models.Card {
	if u, ok := t.data.users[c.UserID]; ok {
		c.OwnerUsername = u.Username
		c.OwnerFirstName = u.FirstName
	}
	return c
}

func (t *tx) CreateCard(_ context.Context, card *models.Card) error {
	if _, ok := t.data.users[card.UserID]; !ok {
		return apperr.NewInternal("memstore.CreateCard", errMissingOwner)
	}
	if card.Status == "" {
		card.Status = models.CardPending
	}
	card.ID = t.nextID()
	card.CreatedAt = t.now()
	t.data.cards[card.ID] = *card
	return nil
}

func (t *tx) GetCard(_ context.Context, id int64) (*models.Card, error) {
	c, ok := t.data.cards[id]
	if !ok {
		return nil, apperr.NewNotFound("memstore.GetCard", "card")
	}
	c = t.withOwner(c)
	return &c, nil
}

func (t *tx) ListCards(_ context.Context, q repository.CardQuery) ([]models.Card, error) {
	cards := []models.Card{}
	for _, c := range t.data.cards {
		if c.Status == q.Status {
			cards = append(cards, t.withOwner(c))
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if q.NewestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if q.NewestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return page(cards, q.Limit, q.Offset), nil
}

func (t *tx) TransitionCard(_ context.Context, id int64, from, to models.CardStatus) (bool, error) {
	c, ok := t.data.cards[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	t.data.cards[id] = c
	return true, nil
}

func (t *tx) UpdatePendingCard(_ context.Context, id int64, upd models.CardEdit) (bool, error) {
	c, ok := t.data.cards[id]
	if !ok || c.Status != models.CardPending {
		return false, nil
	}
	switch upd.Field {
	case models.FieldTitle:
		c.Title = upd.Text
	case models.FieldDescription:
		c.Description = upd.Text
	case models.FieldPrice:
		c.Price = upd.Price
	default:
		return false, apperr.New(apperr.Validation, "unknown_field", "неизвестный атрибут").At("memstore.UpdatePendingCard")
	}
	t.data.cards[id] = c
	return true, nil
}

// Purchase methods

func (t *tx) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	if _, err := t.GetPurchaseByToken(ctx, p.InvoiceToken); err == nil {
		return apperr.New(apperr.Conflict, "duplicate_invoice_token", "счет уже существует").At("memstore.CreatePurchase")
	}
	p.ID = t.nextID()
	p.IsPaid = false
	p.PaidAt = nil
	p.CreatedAt = t.now()
	t.data.purchases[p.ID] = *p
	return nil
}

func (t *tx) GetPurchaseByToken(_ context.Context, token string) (*models.Purchase, error) {
	for _, p := range t.data.purchases {
		if p.InvoiceToken == token {
			return &p, nil
		}
	}
	return nil, apperr.NewNotFound("memstore.GetPurchaseByToken", "purchase")
}

func (t *tx) MarkPurchasePaid(ctx context.Context, token string, at time.Time) (*models.Purchase, error) {
	p, err := t.GetPurchaseByToken(ctx, token)
	if err != nil || p.IsPaid {
		return nil, apperr.NewNotFound("memstore.MarkPurchasePaid", "purchase")
	}
	p.IsPaid = true
	p.PaidAt = &at
	t.data.purchases[p.ID] = *p
	return p, nil
}

// Withdrawal methods

func (t *tx) withRequester(w models.WithdrawalRequest) models.WithdrawalRequest {
	if u, ok := t.data.users[w.UserID]; ok {
		w.OwnerUsername = u.Username
		w.OwnerFirstName = u.FirstName
	}
	return w
}

func (t *tx) CreateWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	if _, ok := t.data.users[w.UserID]; !ok {
		return apperr.NewInternal("memstore.CreateWithdrawal", errMissingOwner)
	}
	w.ID = t.nextID()
	w.IsProcessed = false
	w.ProcessedAt = nil
	w.CreatedAt = t.now()
	t.data.withdrawals[w.ID] = *w
	return nil
}

func (t *tx) GetWithdrawalForUpdate(_ context.Context, id int64) (*models.WithdrawalRequest, error) {
	w, ok := t.data.withdrawals[id]
	if !ok {
		return nil, apperr.NewNotFound("memstore.GetWithdrawalForUpdate", "withdrawal")
	}
	w = t.withRequester(w)
	return &w, nil
}

func (t *tx) MarkWithdrawalProcessed(_ context.Context, id int64, at time.Time) error {
	w, ok := t.data.withdrawals[id]
	if !ok {
		return apperr.NewNotFound("memstore.MarkWithdrawalProcessed", "withdrawal")
	}
	if w.IsProcessed {
		return apperr.ErrAlreadyProcessed.At("memstore.MarkWithdrawalProcessed")
	}
	w.IsProcessed = true
	w.ProcessedAt = &at
	t.data.withdrawals[id] = w
	return nil
}

func (t *tx) ListPendingWithdrawals(_ context.Context) ([]models.WithdrawalRequest, error) {
	requests := []models.WithdrawalRequest{}
	for _, w := range t.data.withdrawals {
		if !w.IsProcessed {
			requests = append(requests, t.withRequester(w))
		}
	}
	sort.Slice(requests, func(i, j int) bool {
		a, b := requests[i], requests[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return requests, nil
}

// Statistics

func (t *tx) UserStats(_ context.Context) ([]models.UserStats, error) {
	byUser := make(map[int64]*models.UserStats, len(t.data.users))
	stats := make([]models.UserStats, 0, len(t.data.users))
	for _, u := range t.data.users {
		byUser[u.ID] = &models.UserStats{UserID: u.ID, Username: u.Username, FirstName: u.FirstName}
	}
	for _, c := range t.data.cards {
		s, ok := byUser[c.UserID]
		if !ok {
			continue
		}
		s.TotalCards++
		switch c.Status {
		case models.CardApproved:
			s.ApprovedCards++
		case models.CardRejected:
			s.RejectedCards++
		}
	}
	for _, s := range byUser {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].UserID < stats[j].UserID })
	return stats, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
