package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/repository"
)

// Actor is the sender of an inbound event as the chat platform reports it.
type Actor struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// IsAdminID reports whether telegramID is on the admin allow-list.
func (s *Service) IsAdminID(telegramID int64) bool {
	return s.admins[telegramID]
}

// ResolveUser returns the stored user for actor, creating it on first contact
// and keeping its admin flag in line with the allow-list.
func (s *Service) ResolveUser(ctx context.Context, actor Actor) (*models.User, error) {
	const op = "service.ResolveUser"
	isAdmin := s.IsAdminID(actor.TelegramID)

	var user *models.User
	err := s.withTx(ctx, op, func(tx repository.Tx) error {
		existing, err := tx.GetUserByTelegramID(ctx, actor.TelegramID)
		if err != nil && !apperr.IsNotFound(err) {
			return err
		}

		if existing == nil {
			candidate := &models.User{
				TelegramID: actor.TelegramID,
				Username:   actor.Username,
				FirstName:  actor.FirstName,
				LastName:   actor.LastName,
				IsAdmin:    isAdmin,
			}
			created, err := tx.CreateUser(ctx, candidate)
			if err != nil {
				return err
			}
			if created {
				user = candidate
				return nil
			}
			// Lost a race with a concurrent first contact.
			if existing, err = tx.GetUserByTelegramID(ctx, actor.TelegramID); err != nil {
				return err
			}
		}

		if existing.IsAdmin != isAdmin {
			if err := tx.SetUserAdmin(ctx, existing.ID, isAdmin); err != nil {
				return err
			}
			existing.IsAdmin = isAdmin
		}
		user = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ReconcileAdmins aligns is_admin of stored users with the allow-list.
// It never creates users.
func (s *Service) ReconcileAdmins(ctx context.Context) (int64, error) {
	var changed int64
	err := s.withTx(ctx, "service.ReconcileAdmins", func(tx repository.Tx) error {
		var err error
		changed, err = tx.SyncAdmins(ctx, s.adminIDs)
		return err
	})
	return changed, err
}

// Balance returns the current balance of the user.
func (s *Service) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.withTx(ctx, "service.Balance", func(tx repository.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		balance = user.Balance
		return nil
	})
	return balance, err
}
