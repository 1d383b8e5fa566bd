package service

import (
	"context"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/conversation"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/repository"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/views"
)

// ListPending returns cards awaiting moderation, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]models.Card, error) {
	return s.listCards(ctx, repository.CardQuery{Status: models.CardPending})
}

// PendingView renders the pending card at index, clamped into range.
func (s *Service) PendingView(ctx context.Context, index int) (views.Page, error) {
	cards, err := s.ListPending(ctx)
	if err != nil {
		return views.Page{}, err
	}
	return views.ModerationPage(cards, views.Clamp(index, len(cards))), nil
}

// NavigatePending moves delta cards from index. Moving past either end is a
// no-op: moved is false and the page stays on the (clamped) current card.
func (s *Service) NavigatePending(ctx context.Context, index, delta int) (views.Page, bool, error) {
	cards, err := s.ListPending(ctx)
	if err != nil {
		return views.Page{}, false, err
	}
	target := index + delta
	if target < 0 || target >= len(cards) {
		return views.ModerationPage(cards, views.Clamp(index, len(cards))), false, nil
	}
	return views.ModerationPage(cards, target), true, nil
}

// Approve publishes a pending card.
func (s *Service) Approve(ctx context.Context, cardID int64) error {
	return s.moderate(ctx, "service.Approve", cardID, models.CardApproved)
}

// Reject declines a pending card.
func (s *Service) Reject(ctx context.Context, cardID int64) error {
	return s.moderate(ctx, "service.Reject", cardID, models.CardRejected)
}

func (s *Service) moderate(ctx context.Context, op string, cardID int64, to models.CardStatus) error {
	err := s.withTx(ctx, op, func(tx repository.Tx) error {
		ok, err := tx.TransitionCard(ctx, cardID, models.CardPending, to)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if _, err := tx.GetCard(ctx, cardID); err != nil {
			return err
		}
		return apperr.ErrAlreadyModerated.At(op)
	})
	if err != nil {
		return err
	}

	s.logEvent("card_moderated", map[string]any{
		"card_id": cardID,
		"status":  string(to),
	})
	return nil
}

// UpdateCardField changes one attribute of a pending card.
func (s *Service) UpdateCardField(ctx context.Context, cardID int64, edit models.CardEdit) (*models.Card, error) {
	const op = "service.UpdateCardField"
	if err := validateEdit(edit); err != nil {
		return nil, err.At(op)
	}

	var card *models.Card
	err := s.withTx(ctx, op, func(tx repository.Tx) error {
		ok, err := tx.UpdatePendingCard(ctx, cardID, edit)
		if err != nil {
			return err
		}
		current, err := tx.GetCard(ctx, cardID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrCardNotEditable.At(op)
		}
		card = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

func validateEdit(edit models.CardEdit) *apperr.Error {
	var reason string
	switch edit.Field {
	case models.FieldTitle:
		_, reason = conversation.ParseTitle(edit.Text)
	case models.FieldDescription:
		_, reason = conversation.ParseDescription(edit.Text)
	case models.FieldPrice:
		_, reason = conversation.ParsePrice(edit.Price.String())
	default:
		return apperr.New(apperr.Validation, "unknown_field", "неизвестный атрибут")
	}
	if reason != "" {
		return apperr.New(apperr.Validation, "invalid_"+string(edit.Field), reason)
	}
	return nil
}
