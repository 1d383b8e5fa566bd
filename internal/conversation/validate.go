package conversation

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
)

const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 2000
)

var MaxPrice = decimal.NewFromInt(1_000_000)

// ParseTitle trims s and checks it fits a card title. The second result is
// the re-prompt text when s is rejected.
func ParseTitle(s string) (string, string) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", "Название не может быть пустым. Введите название товара:"
	case utf8.RuneCountInString(s) > MaxTitleLen:
		return "", "Название слишком длинное (максимум 200 символов). Введите название товара:"
	}
	return s, ""
}

func ParseDescription(s string) (string, string) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", "Описание не может быть пустым. Введите описание товара:"
	case utf8.RuneCountInString(s) > MaxDescriptionLen:
		return "", "Описание слишком длинное (максимум 2000 символов). Введите описание товара:"
	}
	return s, ""
}

// ParseAmount parses a positive decimal with either '.' or ',' as the
// separator, rounded to kopecks.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

func ParsePrice(s string) (decimal.Decimal, string) {
	price, ok := ParseAmount(s)
	switch {
	case !ok:
		return decimal.Zero, "Пожалуйста, введите корректную цену (положительное число):"
	case price.GreaterThan(MaxPrice):
		return decimal.Zero, "Цена слишком большая (максимум 1 000 000). Введите цену:"
	}
	return price, ""
}

// ParseEdit validates value for field with the same rules as card creation.
func ParseEdit(field models.CardField, value string) (models.CardEdit, string) {
	edit := models.CardEdit{Field: field}
	var reason string
	switch field {
	case models.FieldTitle:
		edit.Text, reason = ParseTitle(value)
	case models.FieldDescription:
		edit.Text, reason = ParseDescription(value)
	case models.FieldPrice:
		edit.Price, reason = ParsePrice(value)
	default:
		reason = "Неизвестный атрибут."
	}
	return edit, reason
}

type attribute struct {
	label string
	field models.CardField
}

// attributes lists the editable fields in keyboard order.
var attributes = []attribute{
	{"Название", models.FieldTitle},
	{"Описание", models.FieldDescription},
	{"Цена", models.FieldPrice},
}

// AttributeLabels returns the labels of the editable fields in keyboard order.
func AttributeLabels() []string {
	labels := make([]string, 0, len(attributes))
	for _, a := range attributes {
		labels = append(labels, a.label)
	}
	return labels
}

// ParseAttribute accepts a label or a field name, case-insensitively.
func ParseAttribute(s string) (models.CardField, bool) {
	s = strings.TrimSpace(s)
	// Labels may carry a "|<card id>" suffix from older keyboards.
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[:i]
	}
	for _, a := range attributes {
		if strings.EqualFold(s, a.label) || strings.EqualFold(s, string(a.field)) {
			return a.field, true
		}
	}
	return "", false
}

func fieldLabel(field models.CardField) string {
	for _, a := range attributes {
		if a.field == field {
			return a.label
		}
	}
	return string(field)
}
