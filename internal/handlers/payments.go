package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/service"
)

// TelegramPayments sends invoices through the Bot API payment provider.
type TelegramPayments struct {
	bot           Sender
	providerToken string
}

var _ service.PaymentChannel = (*TelegramPayments)(nil)

func NewTelegramPayments(bot Sender, providerToken string) *TelegramPayments {
	return &TelegramPayments{bot: bot, providerToken: providerToken}
}

func (p *TelegramPayments) SendInvoice(_ context.Context, chatID int64, inv service.Invoice) error {
	prices := []tgbotapi.LabeledPrice{{Label: inv.Label, Amount: int(inv.Amount)}}
	invoice := tgbotapi.NewInvoice(chatID, inv.Title, inv.Description, inv.Payload,
		p.providerToken, "", inv.Currency, prices)
	// The library serialises a nil slice as null, which the API rejects.
	invoice.SuggestedTipAmounts = []int{}

	_, err := p.bot.Send(invoice)
	return err
}
