package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/repository"
)

type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type Options struct {
	AdminIDs      []int64
	MinWithdrawal decimal.Decimal
	Currency      string
	Logger        Logger
}

type Service struct {
	store         repository.Store
	payments      PaymentChannel
	adminIDs      []int64
	admins        map[int64]bool
	minWithdrawal decimal.Decimal
	currency      string
	logger        Logger
	now           func() time.Time
}

// NewService wires the marketplace operations over store. A nil payments
// channel means invoices cannot be issued.
func NewService(store repository.Store, payments PaymentChannel, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.Currency == "" {
		opts.Currency = "RUB"
	}
	admins := make(map[int64]bool, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = true
	}
	return &Service{
		store:         store,
		payments:      payments,
		adminIDs:      opts.AdminIDs,
		admins:        admins,
		minWithdrawal: opts.MinWithdrawal,
		currency:      opts.Currency,
		logger:        opts.Logger,
		now:           time.Now,
	}
}

// MinWithdrawal returns the configured minimum withdrawal amount.
func (s *Service) MinWithdrawal() decimal.Decimal {
	return s.minWithdrawal
}

// Ping checks the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// withTx runs fn in one unit of work, committing only when fn succeeds.
func (s *Service) withTx(ctx context.Context, op string, fn func(tx repository.Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return apperr.WrapInternal(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return apperr.WrapInternal(op, tx.Commit())
}

func (s *Service) logEvent(event string, fields map[string]any) {
	payload := map[string]any{
		"event": event,
		"ts":    s.now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("log_marshal_error: %v", err)
		return
	}
	s.logger.Printf("%s", data)
}
