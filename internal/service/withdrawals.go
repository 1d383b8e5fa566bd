package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/repository"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/views"
)

// CreateWithdrawalRequest records a payout request. The balance is checked
// but not reserved; ProcessWithdrawal checks it again.
func (s *Service) CreateWithdrawalRequest(ctx context.Context, user *models.User, amount decimal.Decimal, requisites string) (*models.WithdrawalRequest, error) {
	const op = "service.CreateWithdrawalRequest"
	if !amount.IsPositive() {
		return nil, apperr.ErrInvalidAmount.At(op)
	}
	if amount.LessThan(s.minWithdrawal) {
		return nil, apperr.ErrBelowMinimum.At(op)
	}

	var request *models.WithdrawalRequest
	err := s.withTx(ctx, op, func(tx repository.Tx) error {
		current, err := tx.GetUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(current.Balance) {
			return apperr.ErrInsufficientBalance.At(op)
		}
		requisites = strings.TrimSpace(requisites)
		if requisites == "" {
			return apperr.ErrEmptyRequisites.At(op)
		}

		request = &models.WithdrawalRequest{
			Amount:         amount,
			Requisites:     requisites,
			UserID:         current.ID,
			OwnerUsername:  current.Username,
			OwnerFirstName: current.FirstName,
		}
		return tx.CreateWithdrawal(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent("withdrawal_requested", map[string]any{
		"withdrawal_id": request.ID,
		"user_id":       request.UserID,
		"amount":        amount.String(),
	})
	return request, nil
}

// ProcessWithdrawal pays out a request: it debits the owner's balance and
// marks the request processed in one unit of work.
func (s *Service) ProcessWithdrawal(ctx context.Context, requestID int64) (*models.WithdrawalRequest, error) {
	const op = "service.ProcessWithdrawal"
	var request *models.WithdrawalRequest
	err := s.withTx(ctx, op, func(tx repository.Tx) error {
		w, err := tx.GetWithdrawalForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if w.IsProcessed {
			return apperr.ErrAlreadyProcessed.At(op)
		}

		owner, err := tx.GetUserForUpdate(ctx, w.UserID)
		if err != nil {
			return err
		}
		if owner.Balance.LessThan(w.Amount) {
			return apperr.ErrInsufficientFunds.At(op)
		}
		if _, err := tx.AddBalance(ctx, owner.ID, w.Amount.Neg()); err != nil {
			return err
		}

		at := s.now()
		if err := tx.MarkWithdrawalProcessed(ctx, w.ID, at); err != nil {
			return err
		}
		w.IsProcessed = true
		w.ProcessedAt = &at
		request = w
		return nil
	})
	if err != nil {
		s.logEvent("withdrawal_process_failed", map[string]any{
			"withdrawal_id": requestID,
			"reason":        errorCode(err),
		})
		return nil, err
	}

	s.logEvent("withdrawal_processed", map[string]any{
		"withdrawal_id": request.ID,
		"user_id":       request.UserID,
		"amount":        request.Amount.String(),
	})
	return request, nil
}

// ListPendingWithdrawals returns unprocessed requests, newest first.
func (s *Service) ListPendingWithdrawals(ctx context.Context) ([]models.WithdrawalRequest, error) {
	var requests []models.WithdrawalRequest
	err := s.withTx(ctx, "service.ListPendingWithdrawals", func(tx repository.Tx) error {
		var err error
		requests, err = tx.ListPendingWithdrawals(ctx)
		return err
	})
	return requests, err
}

// WithdrawalView renders the unprocessed request at index, clamped into range.
func (s *Service) WithdrawalView(ctx context.Context, index int) (views.Page, error) {
	requests, err := s.ListPendingWithdrawals(ctx)
	if err != nil {
		return views.Page{}, err
	}
	return views.WithdrawalPage(requests, views.Clamp(index, len(requests))), nil
}

// NavigateWithdrawals moves delta requests from index without wrapping.
func (s *Service) NavigateWithdrawals(ctx context.Context, index, delta int) (views.Page, bool, error) {
	requests, err := s.ListPendingWithdrawals(ctx)
	if err != nil {
		return views.Page{}, false, err
	}
	target := index + delta
	if target < 0 || target >= len(requests) {
		return views.WithdrawalPage(requests, views.Clamp(index, len(requests))), false, nil
	}
	return views.WithdrawalPage(requests, target), true, nil
}
