package service

import (
	"context"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/conversation"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/repository"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/views"
)

// CreateCard stores a new pending card owned by owner.
func (s *Service) CreateCard(ctx context.Context, owner *models.User, draft models.CardDraft) (*models.Card, error) {
	const op = "service.CreateCard"
	if err := validateDraft(draft); err != nil {
		return nil, err.At(op)
	}

	card := &models.Card{
		Title:       draft.Title,
		Description: draft.Description,
		Price:       draft.Price,
		PhotoFileID: draft.PhotoFileID,
		Status:      models.CardPending,
		UserID:      owner.ID,
	}
	err := s.withTx(ctx, op, func(tx repository.Tx) error {
		return tx.CreateCard(ctx, card)
	})
	if err != nil {
		return nil, err
	}
	card.OwnerUsername = owner.Username
	card.OwnerFirstName = owner.FirstName
	return card, nil
}

// ListApproved returns approved cards, newest first. A zero limit means all.
func (s *Service) ListApproved(ctx context.Context, limit, offset int) ([]models.Card, error) {
	return s.listCards(ctx, repository.CardQuery{
		Status:      models.CardApproved,
		NewestFirst: true,
		Limit:       limit,
		Offset:      offset,
	})
}

// CatalogView renders the approved card at index, wrapped into range.
func (s *Service) CatalogView(ctx context.Context, index int) (views.Page, error) {
	cards, err := s.ListApproved(ctx, 0, 0)
	if err != nil {
		return views.Page{}, err
	}
	return views.CatalogPage(cards, views.Wrap(index, len(cards))), nil
}

// NavigateCatalog moves delta cards from index, wrapping at both ends.
func (s *Service) NavigateCatalog(ctx context.Context, index, delta int) (views.Page, error) {
	return s.CatalogView(ctx, index+delta)
}

func (s *Service) listCards(ctx context.Context, q repository.CardQuery) ([]models.Card, error) {
	var cards []models.Card
	err := s.withTx(ctx, "service.listCards", func(tx repository.Tx) error {
		var err error
		cards, err = tx.ListCards(ctx, q)
		return err
	})
	return cards, err
}

func validateDraft(d models.CardDraft) *apperr.Error {
	if _, reason := conversation.ParseTitle(d.Title); reason != "" {
		return apperr.New(apperr.Validation, "invalid_title", reason)
	}
	if _, reason := conversation.ParseDescription(d.Description); reason != "" {
		return apperr.New(apperr.Validation, "invalid_description", reason)
	}
	if _, reason := conversation.ParsePrice(d.Price.String()); reason != "" {
		return apperr.New(apperr.Validation, "invalid_price", reason)
	}
	return nil
}
