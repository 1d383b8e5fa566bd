// Package views renders list items into chat pages: a caption, an optional
// photo and rows of inline actions.
package views

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/callback"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
)

// PhotoCaptionLimit is Telegram's caption limit for media messages.
const PhotoCaptionLimit = 1024

type Action struct {
	Label string
	Data  string
}

// Page is one item of a list, ready to render. Total is zero for an empty list.
type Page struct {
	Index       int
	Total       int
	Caption     string
	PhotoFileID string
	Actions     [][]Action
}

func (p Page) Empty() bool {
	return p.Total == 0
}

// Clamp bounds index to [0, total-1]. It returns 0 for an empty list.
func Clamp(index, total int) int {
	if total <= 0 || index < 0 {
		return 0
	}
	if index >= total {
		return total - 1
	}
	return index
}

// Wrap maps index onto [0, total-1] cyclically.
func Wrap(index, total int) int {
	if total <= 0 {
		return 0
	}
	index %= total
	if index < 0 {
		index += total
	}
	return index
}

// ModerationPage renders the pending card at index, which must be in range.
func ModerationPage(cards []models.Card, index int) Page {
	if len(cards) == 0 {
		return Page{Caption: "Нет карточек на модерации."}
	}
	card := cards[index]
	caption := fmt.Sprintf(
		"📦 %s\n\n📝 Описание: %s\n\n💰 Цена: %s руб.\n👤 Автор: %s\n\n%d из %d",
		card.Title, card.Description, models.FormatMoney(card.Price), card.OwnerName(), index+1, len(cards),
	)

	var nav []Action
	if index > 0 {
		nav = append(nav, Action{"«", callback.Moderation(callback.ActionPrev, index, card.ID)})
	}
	if index < len(cards)-1 {
		nav = append(nav, Action{"»", callback.Moderation(callback.ActionNext, index, card.ID)})
	}
	rows := [][]Action{
		{
			{"✅ Одобрить", callback.Moderation(callback.ActionApprove, index, card.ID)},
			{"❌ Отклонить", callback.Moderation(callback.ActionReject, index, card.ID)},
		},
		{{"✏️ Изменить", callback.Moderation(callback.ActionEdit, index, card.ID)}},
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	return Page{
		Index:       index,
		Total:       len(cards),
		Caption:     fitCaption(caption, card.PhotoFileID),
		PhotoFileID: card.PhotoFileID,
		Actions:     rows,
	}
}

// CatalogPage renders the approved card at index. Navigation wraps, so both
// arrows are shown whenever there is more than one card.
func CatalogPage(cards []models.Card, index int) Page {
	if len(cards) == 0 {
		return Page{Caption: "Пока нет доступных карточек товаров."}
	}
	card := cards[index]
	caption := fmt.Sprintf(
		"📦 %s\n\n%s\n\n💰 Цена: %s руб.\n👤 Продавец: %s",
		card.Title, card.Description, models.FormatMoney(card.Price), card.OwnerName(),
	)

	row := []Action{}
	if len(cards) > 1 {
		row = append(row, Action{"« Назад", callback.Catalog(callback.ActionPrev, index)})
	}
	row = append(row, Action{"🛒 Купить", callback.Buy(card.ID)})
	if len(cards) > 1 {
		row = append(row, Action{"Вперед »", callback.Catalog(callback.ActionNext, index)})
	}

	return Page{
		Index:       index,
		Total:       len(cards),
		Caption:     fitCaption(caption, card.PhotoFileID),
		PhotoFileID: card.PhotoFileID,
		Actions:     [][]Action{row},
	}
}

// WithdrawalPage renders the unprocessed request at index.
func WithdrawalPage(requests []models.WithdrawalRequest, index int) Page {
	if len(requests) == 0 {
		return Page{Caption: "Нет заявок на вывод."}
	}
	req := requests[index]
	caption := fmt.Sprintf(
		"💰 Заявка на вывод #%d\n\n👤 Пользователь: %s\n💵 Сумма: %s руб.\n📋 Реквизиты: %s\n📅 Дата: %s\n\n%d из %d",
		req.ID, req.OwnerName(), models.FormatMoney(req.Amount), req.Requisites,
		req.CreatedAt.Format("02.01.2006 15:04"), index+1, len(requests),
	)

	rows := [][]Action{
		{{"💸 Выплата проведена", callback.Withdrawal(callback.ActionProcess, index, req.ID)}},
	}
	var nav []Action
	if index > 0 {
		nav = append(nav, Action{"«", callback.Withdrawal(callback.ActionPrev, index, req.ID)})
	}
	if index < len(requests)-1 {
		nav = append(nav, Action{"»", callback.Withdrawal(callback.ActionNext, index, req.ID)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	return Page{Index: index, Total: len(requests), Caption: caption, Actions: rows}
}

// StatisticsText renders the per-user card rollup.
func StatisticsText(stats []models.UserStats) string {
	if len(stats) == 0 {
		return "Нет данных для статистики."
	}
	var b strings.Builder
	b.WriteString("📊 Статистика пользователей:\n\n")
	for _, s := range stats {
		name := s.FirstName
		if s.Username != "" {
			name = "@" + s.Username
		}
		fmt.Fprintf(&b, "👤 %s:\n   Всего карточек: %d\n   Одобрено: %d\n   Отклонено: %d\n\n",
			name, s.TotalCards, s.ApprovedCards, s.RejectedCards)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BalanceText renders the balance screen.
func BalanceText(balance string) string {
	return fmt.Sprintf("Ваш баланс: %s руб.", balance)
}

// BalanceActions are the balance screen buttons.
func BalanceActions() [][]Action {
	return [][]Action{{
		{"💸 Вывести", callback.BalanceWithdraw},
		{"🔄 Обновить", callback.BalanceRefresh},
	}}
}

// StatisticsActions are the statistics screen buttons.
func StatisticsActions() [][]Action {
	return [][]Action{{{"🔄 Обновить", callback.StatsRefresh}}}
}

func fitCaption(caption, photoFileID string) string {
	if photoFileID == "" || utf8.RuneCountInString(caption) <= PhotoCaptionLimit {
		return caption
	}
	runes := []rune(caption)
	return string(runes[:PhotoCaptionLimit-1]) + "…"
}
