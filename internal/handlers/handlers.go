package handlers

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/callback"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/conversation"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/service"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/views"
)

// Sender is the part of *tgbotapi.BotAPI the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type BotHandler struct {
	bot     Sender
	service *service.Service
	engine  *conversation.Engine
	logger  Logger
}

func NewBotHandler(bot Sender, svc *service.Service, engine *conversation.Engine, logger Logger) *BotHandler {
	if logger == nil {
		logger = nopLogger{}
	}
	return &BotHandler{
		bot:     bot,
		service: svc,
		engine:  engine,
		logger:  logger,
	}
}

func (h *BotHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.PreCheckoutQuery != nil:
		h.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		h.handleSuccessfulPayment(ctx, update.Message)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		h.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (h *BotHandler) resolve(ctx context.Context, from *tgbotapi.User) (*models.User, error) {
	return h.service.ResolveUser(ctx, service.Actor{
		TelegramID: from.ID,
		Username:   from.UserName,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	})
}

func (h *BotHandler) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}
	chatID := message.Chat.ID

	user, err := h.resolve(ctx, message.From)
	if err != nil {
		h.logger.Printf("❌ resolve user %d: %v", message.From.ID, err)
		h.sendText(chatID, failureText, nil)
		return
	}

	// Handle commands
	if message.IsCommand() {
		switch message.Command() {
		case "start":
			h.handleStart(chatID, user)
			return
		case "help":
			h.handleHelp(chatID)
			return
		case "admin":
			h.handleAdminMenu(chatID, user)
			return
		case "cancel":
			h.runReply(ctx, chatID, user, func() (conversation.Reply, error) {
				return h.engine.Cancel(ctx, user.TelegramID)
			})
			return
		}
	}

	text := message.Text
	if text == "" {
		text = message.Caption
	}
	input := conversation.Input{Text: text}
	if len(message.Photo) > 0 {
		// The last size is the largest.
		input.PhotoFileID = message.Photo[len(message.Photo)-1].FileID
	}

	if conversation.IsCancel(text) {
		h.runReply(ctx, chatID, user, func() (conversation.Reply, error) {
			return h.engine.Cancel(ctx, user.TelegramID)
		})
		return
	}

	// Handle state-based input
	active, err := h.engine.Active(ctx, user.TelegramID)
	if err != nil {
		h.fail(chatID, err)
		return
	}
	if active {
		h.runReply(ctx, chatID, user, func() (conversation.Reply, error) {
			return h.engine.Handle(ctx, user, input)
		})
		return
	}

	h.handleMenu(ctx, chatID, user, strings.TrimSpace(text))
}

func (h *BotHandler) handleMenu(ctx context.Context, chatID int64, user *models.User, text string) {
	switch text {
	case btnAddCard, strings.TrimPrefix(btnAddCard, "📦 "):
		h.runReply(ctx, chatID, user, func() (conversation.Reply, error) {
			return h.engine.StartCard(ctx, user.TelegramID)
		})
	case btnBrowse, strings.TrimPrefix(btnBrowse, "👀 "):
		page, err := h.service.CatalogView(ctx, 0)
		if err != nil {
			h.fail(chatID, err)
			return
		}
		h.sendPage(chatID, page)
	case btnBalance:
		h.handleBalance(ctx, chatID, user)
	case btnAdminMenu:
		h.handleAdminMenu(chatID, user)
	case btnModeration:
		if !h.requireAdmin(chatID, user) {
			return
		}
		page, err := h.service.PendingView(ctx, 0)
		if err != nil {
			h.fail(chatID, err)
			return
		}
		h.sendPage(chatID, page)
	case btnStatistics:
		if !h.requireAdmin(chatID, user) {
			return
		}
		text, err := h.statisticsText(ctx)
		if err != nil {
			h.fail(chatID, err)
			return
		}
		h.sendText(chatID, text, inlineMarkup(views.StatisticsActions()))
	case btnWithdrawals:
		if !h.requireAdmin(chatID, user) {
			return
		}
		page, err := h.service.WithdrawalView(ctx, 0)
		if err != nil {
			h.fail(chatID, err)
			return
		}
		h.sendPage(chatID, page)
	case btnBack:
		h.sendText(chatID, "Главное меню:", mainKeyboard(user.IsAdmin))
	default:
		h.sendText(chatID, "Используйте меню ниже для навигации.", mainKeyboard(user.IsAdmin))
	}
}

func (h *BotHandler) handleStart(chatID int64, user *models.User) {
	text := `👋 Добро пожаловать в магазин карточек!

Вы можете:
📦 Добавить карточку товара
👀 Просматривать карточки других пользователей
💰 Следить за балансом и выводить средства

Используйте меню ниже для навигации.`

	h.sendText(chatID, text, mainKeyboard(user.IsAdmin))
}

func (h *BotHandler) handleHelp(chatID int64) {
	text := `📖 Помощь

📦 Добавить карточку - создать карточку товара
👀 Посмотреть карточки - просмотр и покупка товаров
💰 Баланс - баланс и вывод средств

📋 Команды:
/start - Главное меню
/cancel - Отменить текущее действие
/skip - Пропустить фото при создании карточки

Администраторы также имеют доступ к админ-панели (/admin).`

	h.sendText(chatID, text, nil)
}

func (h *BotHandler) handleAdminMenu(chatID int64, user *models.User) {
	if !h.requireAdmin(chatID, user) {
		return
	}
	h.sendText(chatID, btnAdminMenu, adminKeyboard())
}

func (h *BotHandler) handleBalance(ctx context.Context, chatID int64, user *models.User) {
	balance, err := h.service.Balance(ctx, user.ID)
	if err != nil {
		h.fail(chatID, err)
		return
	}
	h.sendText(chatID, views.BalanceText(models.FormatMoney(balance)), inlineMarkup(views.BalanceActions()))
}

func (h *BotHandler) statisticsText(ctx context.Context) (string, error) {
	stats, err := h.service.Statistics(ctx)
	if err != nil {
		return "", err
	}
	return views.StatisticsText(stats), nil
}

func (h *BotHandler) requireAdmin(chatID int64, user *models.User) bool {
	if user.IsAdmin {
		return true
	}
	h.sendText(chatID, "⛔ Эта функция доступна только администраторам.", mainKeyboard(false))
	return false
}

// runReply sends the reply produced by step. Errors leave any open flow as
// it was.
func (h *BotHandler) runReply(ctx context.Context, chatID int64, user *models.User, step func() (conversation.Reply, error)) {
	reply, err := step()
	if errors.Is(err, conversation.ErrIdle) {
		h.handleMenu(ctx, chatID, user, "")
		return
	}
	if err != nil {
		h.fail(chatID, err)
		return
	}
	h.sendText(chatID, reply.Text, replyMarkup(reply.Keyboard, user.IsAdmin))
}

// Callback queries

func (h *BotHandler) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	tok, err := callback.Parse(query.Data)
	if err != nil {
		h.logger.Printf("⚠️ %v", err)
		h.answerCallback(query, "Неизвестное действие")
		return
	}

	user, err := h.resolve(ctx, query.From)
	if err != nil {
		h.logger.Printf("❌ resolve user %d: %v", query.From.ID, err)
		h.answerCallback(query, failureText)
		return
	}

	chatID := query.From.ID
	if query.Message != nil {
		chatID = query.Message.Chat.ID
	}

	switch tok.Domain {
	case callback.DomainModeration:
		if !user.IsAdmin {
			h.answerCallback(query, "⛔ Недостаточно прав")
			return
		}
		h.handleModerationCallback(ctx, query, chatID, user, tok)
	case callback.DomainWithdrawal:
		if !user.IsAdmin {
			h.answerCallback(query, "⛔ Недостаточно прав")
			return
		}
		h.handleWithdrawalCallback(ctx, query, chatID, tok)
	case callback.DomainCatalog:
		delta := 1
		if tok.Action == callback.ActionPrev {
			delta = -1
		}
		page, err := h.service.NavigateCatalog(ctx, tok.Index, delta)
		if err != nil {
			h.answerError(query, err)
			return
		}
		h.replacePage(query, chatID, page)
		h.answerCallback(query, "")
	case callback.DomainBuy:
		if _, err := h.service.BuyCard(ctx, user, tok.ID, chatID); err != nil {
			h.answerError(query, err)
			return
		}
		h.answerCallback(query, "Счет выставлен")
	case callback.DomainBalance:
		h.handleBalanceCallback(ctx, query, chatID, user, tok)
	case callback.DomainStats:
		if !user.IsAdmin {
			h.answerCallback(query, "⛔ Недостаточно прав")
			return
		}
		text, err := h.statisticsText(ctx)
		if err != nil {
			h.answerError(query, err)
			return
		}
		h.editText(query, chatID, text, views.StatisticsActions())
		h.answerCallback(query, "Обновлено")
	}
}

func (h *BotHandler) handleModerationCallback(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64, user *models.User, tok callback.Token) {
	switch tok.Action {
	case callback.ActionPrev, callback.ActionNext:
		delta := 1
		if tok.Action == callback.ActionPrev {
			delta = -1
		}
		page, moved, err := h.service.NavigatePending(ctx, tok.Index, delta)
		if err != nil {
			h.answerError(query, err)
			return
		}
		if moved {
			h.replacePage(query, chatID, page)
		}
		h.answerCallback(query, "")
		return

	case callback.ActionEdit:
		reply, err := h.engine.StartEdit(ctx, user.TelegramID, tok.ID)
		if err != nil {
			h.answerError(query, err)
			return
		}
		h.sendText(chatID, reply.Text, replyMarkup(reply.Keyboard, user.IsAdmin))
		h.answerCallback(query, "")
		return
	}

	done := "✅ Карточка одобрена"
	moderate := h.service.Approve
	if tok.Action == callback.ActionReject {
		done = "❌ Карточка отклонена"
		moderate = h.service.Reject
	}
	err := moderate(ctx, tok.ID)
	if err != nil && apperr.KindOf(err) == apperr.Internal {
		h.answerError(query, err)
		return
	}

	page, verr := h.service.PendingView(ctx, 0)
	if verr != nil {
		h.answerError(query, verr)
		return
	}
	h.replacePage(query, chatID, page)
	if err != nil {
		h.answerCallback(query, apperr.MessageOf(err))
		return
	}
	h.answerCallback(query, done)
}

func (h *BotHandler) handleWithdrawalCallback(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64, tok callback.Token) {
	if tok.Action == callback.ActionProcess {
		_, err := h.service.ProcessWithdrawal(ctx, tok.ID)
		switch {
		case err == nil:
			h.answerCallback(query, "✅ Выплата проведена")
		case errors.Is(err, apperr.ErrAlreadyProcessed), apperr.IsNotFound(err):
			// Stale view; show the current queue.
			h.answerError(query, err)
		default:
			h.answerError(query, err)
			return
		}
		page, err := h.service.WithdrawalView(ctx, 0)
		if err != nil {
			h.logger.Printf("❌ withdrawal view: %v", err)
			return
		}
		h.replacePage(query, chatID, page)
		return
	}

	delta := 1
	if tok.Action == callback.ActionPrev {
		delta = -1
	}
	page, moved, err := h.service.NavigateWithdrawals(ctx, tok.Index, delta)
	if err != nil {
		h.answerError(query, err)
		return
	}
	if moved {
		h.replacePage(query, chatID, page)
	}
	h.answerCallback(query, "")
}

func (h *BotHandler) handleBalanceCallback(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64, user *models.User, tok callback.Token) {
	switch tok.Action {
	case callback.ActionWithdraw:
		reply, err := h.engine.StartWithdrawal(ctx, user.TelegramID)
		if err != nil {
			h.answerError(query, err)
			return
		}
		h.sendText(chatID, reply.Text, replyMarkup(reply.Keyboard, user.IsAdmin))
		h.answerCallback(query, "")
	case callback.ActionRefresh:
		balance, err := h.service.Balance(ctx, user.ID)
		if err != nil {
			h.answerError(query, err)
			return
		}
		h.editText(query, chatID, views.BalanceText(models.FormatMoney(balance)), views.BalanceActions())
		h.answerCallback(query, "")
	}
}

// Payments

func (h *BotHandler) handlePreCheckout(ctx context.Context, query *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: query.ID, OK: true}
	if err := h.service.PreCheckout(ctx, query.InvoicePayload); err != nil {
		h.logger.Printf("⚠️ pre-checkout rejected for %q: %v", query.InvoicePayload, err)
		answer.OK = false
		answer.ErrorMessage = "Счет недействителен или уже оплачен."
		if apperr.KindOf(err) == apperr.Internal {
			answer.ErrorMessage = "Не удалось проверить счет, попробуйте позже."
		}
	}
	if _, err := h.bot.Request(answer); err != nil {
		h.logger.Printf("❌ answer pre-checkout: %v", err)
	}
}

func (h *BotHandler) handleSuccessfulPayment(ctx context.Context, message *tgbotapi.Message) {
	payload := message.SuccessfulPayment.InvoicePayload
	_, err := h.service.Settle(ctx, payload)
	switch {
	case err == nil:
		h.sendText(message.Chat.ID, "Спасибо за покупку! Продавец уже получил оплату.", nil)
	case errors.Is(err, apperr.ErrAlreadySettled):
		h.sendText(message.Chat.ID, "Этот платеж уже был учтен.", nil)
	default:
		h.logger.Printf("❌ settle invoice %q: %v", payload, err)
		h.sendText(message.Chat.ID, "Не удалось обработать платеж. Поддержка уведомлена.", nil)
	}
}

// Sending

const failureText = "❌ Что-то пошло не так, попробуйте позже."

func (h *BotHandler) fail(chatID int64, err error) {
	h.sendText(chatID, h.errorText(err), nil)
}

func (h *BotHandler) errorText(err error) string {
	switch apperr.KindOf(err) {
	case apperr.Internal:
		h.logger.Printf("❌ %v", err)
		return failureText
	case apperr.Unavailable:
		h.logger.Printf("⚠️ %v", err)
	case apperr.NotFound:
		return apperr.MessageOf(err) + ". Обновите список."
	}
	return apperr.MessageOf(err)
}

func (h *BotHandler) answerError(query *tgbotapi.CallbackQuery, err error) {
	h.answerCallback(query, h.errorText(err))
}

func (h *BotHandler) answerCallback(query *tgbotapi.CallbackQuery, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(query.ID, text)); err != nil {
		h.logger.Printf("❌ answer callback: %v", err)
	}
}

func (h *BotHandler) sendText(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Printf("❌ send message to %d: %v", chatID, err)
	}
}

func (h *BotHandler) sendPage(chatID int64, page views.Page) {
	if page.Empty() {
		h.sendText(chatID, page.Caption, nil)
		return
	}
	markup := inlineMarkup(page.Actions)
	if page.PhotoFileID == "" {
		h.sendText(chatID, page.Caption, markup)
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(page.PhotoFileID))
	photo.Caption = page.Caption
	photo.ReplyMarkup = markup
	if _, err := h.bot.Send(photo); err != nil {
		h.logger.Printf("❌ send photo to %d: %v", chatID, err)
	}
}

// replacePage swaps the message the query came from for page. Text and photo
// messages cannot be edited into each other, so the old one is deleted.
func (h *BotHandler) replacePage(query *tgbotapi.CallbackQuery, chatID int64, page views.Page) {
	if query.Message != nil {
		if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, query.Message.MessageID)); err != nil {
			h.logger.Printf("⚠️ delete message %d: %v", query.Message.MessageID, err)
		}
	}
	h.sendPage(chatID, page)
}

func (h *BotHandler) editText(query *tgbotapi.CallbackQuery, chatID int64, text string, actions [][]views.Action) {
	if query.Message == nil {
		h.sendText(chatID, text, inlineMarkup(actions))
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, query.Message.MessageID, text, inlineMarkup(actions))
	if _, err := h.bot.Send(edit); err != nil {
		// Telegram rejects edits that change nothing.
		h.logger.Printf("⚠️ edit message %d: %v", query.Message.MessageID, err)
	}
}
