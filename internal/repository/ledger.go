package repository

import (
	"context"
	"time"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
)

// Purchase methods

const purchaseColumns = `id, amount, invoice_token, is_paid, paid_at, created_at, user_id, card_id`

func (t *pgTx) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	const op = "repository.CreatePurchase"
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO purchases (amount, invoice_token, user_id, card_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, p.Amount, p.InvoiceToken, p.UserID, p.CardID).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.Conflict, "duplicate_invoice_token", "счет уже существует").At(op)
		}
		return apperr.NewInternal(op, err)
	}
	return nil
}

func (t *pgTx) GetPurchaseByToken(ctx context.Context, token string) (*models.Purchase, error) {
	var p models.Purchase
	err := t.tx.GetContext(ctx, &p, `SELECT `+purchaseColumns+` FROM purchases WHERE invoice_token = $1`, token)
	if err != nil {
		return nil, notFoundOr("repository.GetPurchaseByToken", "purchase", err)
	}
	return &p, nil
}

func (t *pgTx) MarkPurchasePaid(ctx context.Context, token string, at time.Time) (*models.Purchase, error) {
	var p models.Purchase
	err := t.tx.GetContext(ctx, &p, `
		UPDATE purchases SET is_paid = TRUE, paid_at = $2
		WHERE invoice_token = $1 AND is_paid = FALSE
		RETURNING `+purchaseColumns, token, at)
	if err != nil {
		return nil, notFoundOr("repository.MarkPurchasePaid", "purchase", err)
	}
	return &p, nil
}

// Withdrawal methods

func (t *pgTx) CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO withdrawal_requests (amount, requisites, user_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, w.Amount, w.Requisites, w.UserID).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return apperr.NewInternal("repository.CreateWithdrawal", err)
	}
	return nil
}

func (t *pgTx) GetWithdrawalForUpdate(ctx context.Context, id int64) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := t.tx.GetContext(ctx, &w, `
		SELECT w.id, w.amount, w.requisites, w.is_processed, w.processed_at, w.created_at, w.user_id,
		       u.username AS owner_username, u.first_name AS owner_first_name
		FROM withdrawal_requests w
		JOIN users u ON u.id = w.user_id
		WHERE w.id = $1
		FOR UPDATE OF w
	`, id)
	if err != nil {
		return nil, notFoundOr("repository.GetWithdrawalForUpdate", "withdrawal", err)
	}
	return &w, nil
}

func (t *pgTx) MarkWithdrawalProcessed(ctx context.Context, id int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE withdrawal_requests SET is_processed = TRUE, processed_at = $2
		WHERE id = $1 AND is_processed = FALSE
	`, id, at)
	ok, err := affected("repository.MarkWithdrawalProcessed", res, err)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrAlreadyProcessed.At("repository.MarkWithdrawalProcessed")
	}
	return nil
}

func (t *pgTx) ListPendingWithdrawals(ctx context.Context) ([]models.WithdrawalRequest, error) {
	requests := []models.WithdrawalRequest{}
	err := t.tx.SelectContext(ctx, &requests, `
		SELECT w.id, w.amount, w.requisites, w.is_processed, w.processed_at, w.created_at, w.user_id,
		       u.username AS owner_username, u.first_name AS owner_first_name
		FROM withdrawal_requests w
		JOIN users u ON u.id = w.user_id
		WHERE NOT w.is_processed
		ORDER BY w.created_at DESC, w.id DESC
	`)
	if err != nil {
		return nil, apperr.NewInternal("repository.ListPendingWithdrawals", err)
	}
	return requests, nil
}

// Statistics

func (t *pgTx) UserStats(ctx context.Context) ([]models.UserStats, error) {
	stats := []models.UserStats{}
	err := t.tx.SelectContext(ctx, &stats, `
		SELECT u.id AS user_id, u.username, u.first_name,
		       COUNT(c.id) AS total_cards,
		       COUNT(c.id) FILTER (WHERE c.status = 'approved') AS approved_cards,
		       COUNT(c.id) FILTER (WHERE c.status = 'rejected') AS rejected_cards
		FROM users u
		LEFT JOIN cards c ON c.user_id = u.id
		GROUP BY u.id, u.username, u.first_name
		ORDER BY u.id
	`)
	if err != nil {
		return nil, apperr.NewInternal("repository.UserStats", err)
	}
	return stats, nil
}
