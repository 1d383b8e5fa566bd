package service

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/repository"
)

// Telegram invoice field limits.
const (
	invoiceTitleLimit       = 32
	invoiceDescriptionLimit = 255
)

// Invoice is a payment request for one purchase. Amount is in minor units.
type Invoice struct {
	Title       string
	Description string
	Label       string
	Payload     string
	Currency    string
	Amount      int64
}

// PaymentChannel delivers invoices to the buyer's chat.
type PaymentChannel interface {
	SendInvoice(ctx context.Context, chatID int64, invoice Invoice) error
}

// PaymentAvailable reports whether invoices can be issued.
func (s *Service) PaymentAvailable() bool {
	return s.payments != nil
}

// BuyCard records an unpaid purchase of an approved card and sends the
// invoice for it to chatID.
func (s *Service) BuyCard(ctx context.Context, buyer *models.User, cardID, chatID int64) (*models.Purchase, error) {
	const op = "service.BuyCard"
	if !s.PaymentAvailable() {
		s.logger.Printf("⚠️ payment provider token is not configured, card %d not invoiced", cardID)
		return nil, apperr.ErrPaymentUnavailable.At(op)
	}

	var (
		card     *models.Card
		purchase *models.Purchase
	)
	err := s.withTx(ctx, op, func(tx repository.Tx) error {
		var err error
		card, err = tx.GetCard(ctx, cardID)
		if apperr.IsNotFound(err) || (err == nil && !card.IsApproved()) {
			return apperr.ErrCardUnavailable.At(op)
		}
		if err != nil {
			return err
		}

		purchase = &models.Purchase{
			Amount:       card.Price,
			InvoiceToken: uuid.NewString(),
			UserID:       buyer.ID,
			CardID:       card.ID,
		}
		return tx.CreatePurchase(ctx, purchase)
	})
	if err != nil {
		return nil, err
	}

	invoice := Invoice{
		Title:       truncate(card.Title, invoiceTitleLimit),
		Description: truncate(card.Description, invoiceDescriptionLimit),
		Label:       truncate(card.Title, invoiceTitleLimit),
		Payload:     purchase.InvoiceToken,
		Currency:    s.currency,
		Amount:      purchase.Amount.Shift(2).IntPart(),
	}
	if err := s.payments.SendInvoice(ctx, chatID, invoice); err != nil {
		s.logEvent("invoice_send_failed", map[string]any{
			"purchase_id": purchase.ID,
			"token":       purchase.InvoiceToken,
			"error":       err.Error(),
		})
		return nil, apperr.WrapInternal(op, err)
	}

	s.logEvent("invoice_created", map[string]any{
		"purchase_id": purchase.ID,
		"token":       purchase.InvoiceToken,
		"card_id":     card.ID,
		"buyer_id":    buyer.ID,
		"amount":      purchase.Amount.String(),
	})
	return purchase, nil
}

// PreCheckout confirms that token belongs to an unpaid purchase.
func (s *Service) PreCheckout(ctx context.Context, token string) error {
	const op = "service.PreCheckout"
	return s.withTx(ctx, op, func(tx repository.Tx) error {
		p, err := tx.GetPurchaseByToken(ctx, token)
		if err != nil {
			return err
		}
		if p.IsPaid {
			return apperr.ErrAlreadySettled.At(op)
		}
		return nil
	})
}

// Settle marks the purchase with token paid and credits the seller, once.
// Repeated calls with the same token report already_settled and change
// nothing.
func (s *Service) Settle(ctx context.Context, token string) (*models.Purchase, error) {
	const op = "service.Settle"
	var (
		purchase *models.Purchase
		sellerID int64
	)
	err := s.withTx(ctx, op, func(tx repository.Tx) error {
		p, err := tx.MarkPurchasePaid(ctx, token, s.now())
		if apperr.IsNotFound(err) {
			existing, gerr := tx.GetPurchaseByToken(ctx, token)
			if gerr != nil {
				return gerr
			}
			if existing.IsPaid {
				return apperr.ErrAlreadySettled.At(op)
			}
			return err
		}
		if err != nil {
			return err
		}

		card, err := tx.GetCard(ctx, p.CardID)
		if err != nil {
			return err
		}
		if _, err := tx.AddBalance(ctx, card.UserID, p.Amount); err != nil {
			return err
		}
		purchase = p
		sellerID = card.UserID
		return nil
	})
	if err != nil {
		s.logEvent("payment_settle_failed", map[string]any{
			"token":  token,
			"reason": errorCode(err),
		})
		return nil, err
	}

	s.logEvent("payment_settled", map[string]any{
		"purchase_id": purchase.ID,
		"token":       token,
		"seller_id":   sellerID,
		"amount":      purchase.Amount.String(),
	})
	return purchase, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func errorCode(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return string(apperr.KindOf(err))
}
