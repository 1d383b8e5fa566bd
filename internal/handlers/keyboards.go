package handlers

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/conversation"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/views"
)

// Reply keyboard buttons.
const (
	btnAddCard     = "📦 Добавить карточку"
	btnBrowse      = "👀 Посмотреть карточки"
	btnBalance     = "💰 Баланс"
	btnAdminMenu   = "👨‍💼 Админ меню"
	btnModeration  = "Модерация"
	btnStatistics  = "Статистика"
	btnWithdrawals = "Заявки на вывод"
	btnBack        = "🔙 Назад"
)

func mainKeyboard(isAdmin bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAddCard)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBrowse)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBalance)),
	}
	if isAdmin {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAdminMenu)))
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}

func adminKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnModeration)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnStatistics)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnWithdrawals)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBack)),
	)
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(conversation.CancelButton)),
	)
}

func photoKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(conversation.SkipButton),
			tgbotapi.NewKeyboardButton(conversation.CancelButton),
		),
	)
}

func attributesKeyboard() tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for _, label := range conversation.AttributeLabels() {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(label)))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(conversation.CancelButton)))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.OneTimeKeyboard = true
	return kb
}

// replyMarkup maps a conversation keyboard onto a Telegram markup. It returns
// nil for KeyboardNone.
func replyMarkup(kind conversation.Keyboard, isAdmin bool) interface{} {
	switch kind {
	case conversation.KeyboardCancel:
		return cancelKeyboard()
	case conversation.KeyboardPhoto:
		return photoKeyboard()
	case conversation.KeyboardAttributes:
		return attributesKeyboard()
	case conversation.KeyboardMain:
		return mainKeyboard(isAdmin)
	}
	return nil
}

func inlineMarkup(actions [][]views.Action) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(actions))
	for _, row := range actions {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, a := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
