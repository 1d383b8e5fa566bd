package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/memstore"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/repository"
)

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) SendInvoice(ctx context.Context, chatID int64, invoice Invoice) error {
	return m.Called(ctx, chatID, invoice).Error(0)
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *captureLogger) contains(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, `"event":"`+event+`"`) {
			return true
		}
	}
	return false
}

type fixture struct {
	svc      *Service
	store    *memstore.Store
	payments *mockPayments
	log      *captureLogger
}

func newFixture(t *testing.T, adminIDs ...int64) *fixture {
	t.Helper()
	store := memstore.New()
	payments := &mockPayments{}
	log := &captureLogger{}
	svc := NewService(store, payments, Options{
		AdminIDs:      adminIDs,
		MinWithdrawal: decimal.NewFromInt(100),
		Logger:        log,
	})
	return &fixture{svc: svc, store: store, payments: payments, log: log}
}

func (f *fixture) user(t *testing.T, telegramID int64, username string) *models.User {
	t.Helper()
	u, err := f.svc.ResolveUser(context.Background(), Actor{TelegramID: telegramID, Username: username})
	require.NoError(t, err)
	return u
}

func (f *fixture) card(t *testing.T, owner *models.User, title, price string) *models.Card {
	t.Helper()
	c, err := f.svc.CreateCard(context.Background(), owner, models.CardDraft{
		Title:       title,
		Description: title + " description",
		Price:       decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) setBalance(t *testing.T, userID int64, amount string) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	u, err := tx.GetUser(ctx, userID)
	require.NoError(t, err)
	_, err = tx.AddBalance(ctx, userID, decimal.RequireFromString(amount).Sub(u.Balance))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}

func (f *fixture) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	b, err := f.svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func TestResolveUserIsIdempotent(t *testing.T) {
	f := newFixture(t, 500)
	ctx := context.Background()

	first, err := f.svc.ResolveUser(ctx, Actor{TelegramID: 10, Username: "ann"})
	require.NoError(t, err)
	second, err := f.svc.ResolveUser(ctx, Actor{TelegramID: 10, Username: "ann"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.IsAdmin)

	admin, err := f.svc.ResolveUser(ctx, Actor{TelegramID: 500})
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)

	stats, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, 2)
}

func TestResolveUserConcurrentFirstContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := f.svc.ResolveUser(ctx, Actor{TelegramID: 77})
			if assert.NoError(t, err) {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestResolveUserFollowsAllowList(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	before := NewService(store, nil, Options{AdminIDs: []int64{1}})
	u, err := before.ResolveUser(ctx, Actor{TelegramID: 1})
	require.NoError(t, err)
	require.True(t, u.IsAdmin)
	_, err = before.ResolveUser(ctx, Actor{TelegramID: 2})
	require.NoError(t, err)

	after := NewService(store, nil, Options{AdminIDs: []int64{2, 3}})
	changed, err := after.ReconcileAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	u, err = after.ResolveUser(ctx, Actor{TelegramID: 1})
	require.NoError(t, err)
	assert.False(t, u.IsAdmin)

	stats, err := after.Statistics(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, 2, "reconcile must not create users")
}

// Scenario A: minimum and balance checks on withdrawal requests.
func TestCreateWithdrawalRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	f.setBalance(t, seller.ID, "200")

	req, err := f.svc.CreateWithdrawalRequest(ctx, seller, decimal.NewFromInt(150), "  card 123 ")
	require.NoError(t, err)
	assert.Equal(t, "card 123", req.Requisites)
	assert.False(t, req.IsProcessed)

	_, err = f.svc.CreateWithdrawalRequest(ctx, seller, decimal.NewFromInt(50), "card 123")
	assert.ErrorIs(t, err, apperr.ErrBelowMinimum)

	_, err = f.svc.CreateWithdrawalRequest(ctx, seller, decimal.NewFromInt(250), "card 123")
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	_, err = f.svc.CreateWithdrawalRequest(ctx, seller, decimal.NewFromInt(150), "   ")
	assert.ErrorIs(t, err, apperr.ErrEmptyRequisites)

	pending, err := f.svc.ListPendingWithdrawals(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.True(t, f.balance(t, seller.ID).Equal(decimal.NewFromInt(200)), "requests do not reserve funds")
	assert.True(t, f.log.contains("withdrawal_requested"))
}

func TestWithdrawalValidationOrder(t *testing.T) {
	f := newFixture(t)
	seller := f.user(t, 1, "seller")

	// Below minimum wins over empty requisites and zero balance.
	_, err := f.svc.CreateWithdrawalRequest(context.Background(), seller, decimal.NewFromInt(10), "")
	assert.ErrorIs(t, err, apperr.ErrBelowMinimum)

	// Balance wins over empty requisites.
	_, err = f.svc.CreateWithdrawalRequest(context.Background(), seller, decimal.NewFromInt(100), "")
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
}

// Scenario B: settlement credits the seller exactly once.
func TestBuyAndSettle(t *testing.T) {
	f := newFixture(t, 900)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	buyer := f.user(t, 2, "buyer")
	card := f.card(t, seller, "Lamp", "15.0")
	require.NoError(t, f.svc.Approve(ctx, card.ID))

	f.payments.On("SendInvoice", ctx, int64(2), mock.MatchedBy(func(inv Invoice) bool {
		return inv.Amount == 1500 && inv.Currency == "RUB" && inv.Title == "Lamp" && inv.Payload != ""
	})).Return(nil).Once()

	purchase, err := f.svc.BuyCard(ctx, buyer, card.ID, 2)
	require.NoError(t, err)
	f.payments.AssertExpectations(t)
	assert.True(t, purchase.Amount.Equal(decimal.NewFromInt(15)))
	assert.False(t, purchase.IsPaid)

	require.NoError(t, f.svc.PreCheckout(ctx, purchase.InvoiceToken))

	settled, err := f.svc.Settle(ctx, purchase.InvoiceToken)
	require.NoError(t, err)
	assert.True(t, settled.IsPaid)
	assert.NotNil(t, settled.PaidAt)
	assert.True(t, f.balance(t, seller.ID).Equal(decimal.NewFromInt(15)))

	_, err = f.svc.Settle(ctx, purchase.InvoiceToken)
	assert.ErrorIs(t, err, apperr.ErrAlreadySettled)
	assert.True(t, f.balance(t, seller.ID).Equal(decimal.NewFromInt(15)))

	assert.ErrorIs(t, f.svc.PreCheckout(ctx, purchase.InvoiceToken), apperr.ErrAlreadySettled)
	assert.True(t, f.log.contains("invoice_created"))
	assert.True(t, f.log.contains("payment_settled"))
	assert.True(t, f.log.contains("payment_settle_failed"))
}

func TestSettleUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Settle(context.Background(), "no-such-token")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestConcurrentSettleCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	buyer := f.user(t, 2, "buyer")
	card := f.card(t, seller, "Lamp", "15")
	require.NoError(t, f.svc.Approve(ctx, card.ID))

	f.payments.On("SendInvoice", ctx, int64(2), mock.Anything).Return(nil)
	purchase, err := f.svc.BuyCard(ctx, buyer, card.ID, 2)
	require.NoError(t, err)

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Settle(ctx, purchase.InvoiceToken)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrAlreadySettled)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.True(t, f.balance(t, seller.ID).Equal(decimal.NewFromInt(15)))
}

func TestBuyCardRequiresApprovedCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	buyer := f.user(t, 2, "buyer")
	card := f.card(t, seller, "Lamp", "15")

	_, err := f.svc.BuyCard(ctx, buyer, card.ID, 2)
	assert.ErrorIs(t, err, apperr.ErrCardUnavailable)

	_, err = f.svc.BuyCard(ctx, buyer, 9999, 2)
	assert.ErrorIs(t, err, apperr.ErrCardUnavailable)

	f.payments.AssertNotCalled(t, "SendInvoice", mock.Anything, mock.Anything, mock.Anything)
}

func TestBuyCardWithoutPaymentChannel(t *testing.T) {
	log := &captureLogger{}
	svc := NewService(memstore.New(), nil, Options{Logger: log})
	buyer := &models.User{ID: 1}

	_, err := svc.BuyCard(context.Background(), buyer, 1, 1)
	assert.ErrorIs(t, err, apperr.ErrPaymentUnavailable)
	assert.Equal(t, apperr.Unavailable, apperr.KindOf(err))
	assert.NotEmpty(t, log.lines)
}

func TestBuyCardInvoiceFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	card := f.card(t, seller, "Lamp", "15")
	require.NoError(t, f.svc.Approve(ctx, card.ID))

	f.payments.On("SendInvoice", ctx, int64(1), mock.Anything).Return(errors.New("telegram down")).Once()

	_, err := f.svc.BuyCard(ctx, seller, card.ID, 1)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

// Scenario C: moderation resolves a card exactly once.
func TestApproveTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	card := f.card(t, seller, "Lamp", "15")

	page, err := f.svc.PendingView(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	require.NoError(t, f.svc.Approve(ctx, card.ID))

	page, err = f.svc.PendingView(ctx, 0)
	require.NoError(t, err)
	assert.True(t, page.Empty())

	err = f.svc.Approve(ctx, card.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyModerated)
	err = f.svc.Reject(ctx, card.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyModerated)

	approved, err := f.svc.ListApproved(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, models.CardApproved, approved[0].Status)

	err = f.svc.Approve(ctx, 4242)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestModerationNavigationClamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	f.card(t, seller, "First", "1")
	f.card(t, seller, "Second", "2")

	page, moved, err := f.svc.NavigatePending(ctx, 0, -1)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, 0, page.Index)
	assert.Contains(t, page.Caption, "First")

	page, moved, err = f.svc.NavigatePending(ctx, 0, 1)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Contains(t, page.Caption, "Second")

	_, moved, err = f.svc.NavigatePending(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, moved)

	// A stale index past the end is clamped to the last card.
	page, err = f.svc.PendingView(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Index)
}

func TestCatalogNavigationWraps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	for _, title := range []string{"Old", "Mid", "New"} {
		c := f.card(t, seller, title, "10")
		require.NoError(t, f.svc.Approve(ctx, c.ID))
	}

	page, err := f.svc.CatalogView(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, page.Caption, "New", "newest first")

	page, err = f.svc.NavigateCatalog(ctx, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Index)
	assert.Contains(t, page.Caption, "Old")

	page, err = f.svc.NavigateCatalog(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Index)

	limited, err := f.svc.ListApproved(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "Mid", limited[0].Title)
}

// Scenario D at the service boundary: price edits must stay positive.
func TestUpdateCardField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	card := f.card(t, seller, "Lamp", "15")

	_, err := f.svc.UpdateCardField(ctx, card.ID, models.CardEdit{Field: models.FieldPrice, Price: decimal.NewFromInt(-5)})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	updated, err := f.svc.UpdateCardField(ctx, card.ID, models.CardEdit{Field: models.FieldPrice, Price: decimal.RequireFromString("12.5")})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("12.5")))

	updated, err = f.svc.UpdateCardField(ctx, card.ID, models.CardEdit{Field: models.FieldTitle, Text: "Desk lamp"})
	require.NoError(t, err)
	assert.Equal(t, "Desk lamp", updated.Title)

	require.NoError(t, f.svc.Reject(ctx, card.ID))
	_, err = f.svc.UpdateCardField(ctx, card.ID, models.CardEdit{Field: models.FieldTitle, Text: "Too late"})
	assert.ErrorIs(t, err, apperr.ErrCardNotEditable)

	_, err = f.svc.UpdateCardField(ctx, 777, models.CardEdit{Field: models.FieldTitle, Text: "Ghost"})
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestCreateCardValidates(t *testing.T) {
	f := newFixture(t)
	seller := f.user(t, 1, "seller")

	_, err := f.svc.CreateCard(context.Background(), seller, models.CardDraft{
		Title:       "",
		Description: "desc",
		Price:       decimal.NewFromInt(1),
	})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = f.svc.CreateCard(context.Background(), seller, models.CardDraft{
		Title:       "Lamp",
		Description: "desc",
		Price:       decimal.Zero,
	})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestProcessWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	f.setBalance(t, seller.ID, "200")

	req, err := f.svc.CreateWithdrawalRequest(ctx, seller, decimal.NewFromInt(150), "card 123")
	require.NoError(t, err)

	processed, err := f.svc.ProcessWithdrawal(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, processed.IsProcessed)
	assert.NotNil(t, processed.ProcessedAt)
	assert.True(t, f.balance(t, seller.ID).Equal(decimal.NewFromInt(50)))

	_, err = f.svc.ProcessWithdrawal(ctx, req.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	assert.True(t, f.balance(t, seller.ID).Equal(decimal.NewFromInt(50)))

	_, err = f.svc.ProcessWithdrawal(ctx, 9999)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	page, err := f.svc.WithdrawalView(ctx, 0)
	require.NoError(t, err)
	assert.True(t, page.Empty())
}

func TestProcessWithdrawalInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	f.setBalance(t, seller.ID, "200")

	first, err := f.svc.CreateWithdrawalRequest(ctx, seller, decimal.NewFromInt(150), "card 1")
	require.NoError(t, err)
	second, err := f.svc.CreateWithdrawalRequest(ctx, seller, decimal.NewFromInt(150), "card 2")
	require.NoError(t, err)

	_, err = f.svc.ProcessWithdrawal(ctx, first.ID)
	require.NoError(t, err)

	_, err = f.svc.ProcessWithdrawal(ctx, second.ID)
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.True(t, f.balance(t, seller.ID).Equal(decimal.NewFromInt(50)))

	pending, err := f.svc.ListPendingWithdrawals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.True(t, f.log.contains("withdrawal_process_failed"))
}

func TestWithdrawalNavigation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	f.setBalance(t, seller.ID, "1000")
	for _, req := range []string{"a", "b"} {
		_, err := f.svc.CreateWithdrawalRequest(ctx, seller, decimal.NewFromInt(100), req)
		require.NoError(t, err)
	}

	page, err := f.svc.WithdrawalView(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, page.Caption, "Реквизиты: b", "newest first")

	page, moved, err := f.svc.NavigateWithdrawals(ctx, 0, 1)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Contains(t, page.Caption, "Реквизиты: a")

	_, moved, err = f.svc.NavigateWithdrawals(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")
	f.user(t, 2, "lurker")

	a := f.card(t, seller, "A", "1")
	b := f.card(t, seller, "B", "1")
	f.card(t, seller, "C", "1")
	require.NoError(t, f.svc.Approve(ctx, a.ID))
	require.NoError(t, f.svc.Reject(ctx, b.ID))

	stats, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, models.UserStats{UserID: seller.ID, Username: "seller", TotalCards: 3, ApprovedCards: 1, RejectedCards: 1}, stats[0])
	assert.Equal(t, 0, stats[1].TotalCards)
}

func TestFailedUnitOfWorkLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, 1, "seller")

	boom := errors.New("boom")
	err := f.svc.withTx(ctx, "test", func(tx repository.Tx) error {
		if _, err := tx.AddBalance(ctx, seller.ID, decimal.NewFromInt(10)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, f.balance(t, seller.ID).IsZero())
}
