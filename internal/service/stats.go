package service

import (
	"context"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/repository"
)

// Statistics returns card counts per user, including users without cards.
func (s *Service) Statistics(ctx context.Context) ([]models.UserStats, error) {
	var stats []models.UserStats
	err := s.withTx(ctx, "service.Statistics", func(tx repository.Tx) error {
		var err error
		stats, err = tx.UserStats(ctx)
		return err
	})
	return stats, err
}
