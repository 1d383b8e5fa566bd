package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a chat user and their seller wallet.
type User struct {
	ID         int64           `db:"id"`          // Internal ID
	TelegramID int64           `db:"telegram_id"` // Telegram ID of the user
	Username   string          `db:"username"`    // @nickname, may be empty
	FirstName  string          `db:"first_name"`
	LastName   string          `db:"last_name"`
	Balance    decimal.Decimal `db:"balance"`  // Earned from sales, never negative
	IsAdmin    bool            `db:"is_admin"` // Reconciled from ADMIN_IDS
	CreatedAt  time.Time       `db:"created_at"`
}

// DisplayName returns @username when present, otherwise the first name.
func (u User) DisplayName() string {
	return displayName(u.Username, u.FirstName)
}

// CardStatus is the moderation state of a card.
type CardStatus string

const (
	CardPending  CardStatus = "pending"
	CardApproved CardStatus = "approved"
	CardRejected CardStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s CardStatus) Valid() bool {
	switch s {
	case CardPending, CardApproved, CardRejected:
		return true
	}
	return false
}

// Card represents a marketplace listing.
type Card struct {
	ID          int64           `db:"id"`
	Title       string          `db:"title"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	PhotoFileID string          `db:"photo_file_id"` // Telegram file id, empty when no photo
	Status      CardStatus      `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	UserID      int64           `db:"user_id"` // Owner (foreign key to users.id)

	// Filled by list queries that join the owner.
	OwnerUsername  string `db:"owner_username"`
	OwnerFirstName string `db:"owner_first_name"`
}

func (c Card) IsPending() bool  { return c.Status == CardPending }
func (c Card) IsApproved() bool { return c.Status == CardApproved }
func (c Card) IsRejected() bool { return c.Status == CardRejected }

// OwnerName returns the owner's display name for captions.
func (c Card) OwnerName() string {
	return displayName(c.OwnerUsername, c.OwnerFirstName)
}

// CardField selects an editable card attribute.
type CardField string

const (
	FieldTitle       CardField = "title"
	FieldDescription CardField = "description"
	FieldPrice       CardField = "price"
)

// CardDraft is a card collected by the creation flow, not yet stored.
type CardDraft struct {
	Title       string
	Description string
	Price       decimal.Decimal
	PhotoFileID string
}

// CardEdit carries the new value of one editable field. Text is used for
// title and description, Price for price.
type CardEdit struct {
	Field CardField
	Text  string
	Price decimal.Decimal
}

// Purchase is an invoice issued to a buyer for one card.
type Purchase struct {
	ID           int64           `db:"id"`
	Amount       decimal.Decimal `db:"amount"`        // Card price at issuance
	InvoiceToken string          `db:"invoice_token"` // Invoice payload, globally unique
	IsPaid       bool            `db:"is_paid"`
	PaidAt       *time.Time      `db:"paid_at"`
	CreatedAt    time.Time       `db:"created_at"`
	UserID       int64           `db:"user_id"` // Buyer
	CardID       int64           `db:"card_id"`
}

// WithdrawalRequest is a seller's request to pay out balance.
type WithdrawalRequest struct {
	ID          int64           `db:"id"`
	Amount      decimal.Decimal `db:"amount"`
	Requisites  string          `db:"requisites"`
	IsProcessed bool            `db:"is_processed"`
	ProcessedAt *time.Time      `db:"processed_at"`
	CreatedAt   time.Time       `db:"created_at"`
	UserID      int64           `db:"user_id"`

	OwnerUsername  string `db:"owner_username"`
	OwnerFirstName string `db:"owner_first_name"`
}

// OwnerName returns the requester's display name for captions.
func (w WithdrawalRequest) OwnerName() string {
	return displayName(w.OwnerUsername, w.OwnerFirstName)
}

// UserStats is one row of the per-user card rollup.
type UserStats struct {
	UserID        int64  `db:"user_id" json:"user_id"`
	Username      string `db:"username" json:"username"`
	FirstName     string `db:"first_name" json:"first_name"`
	TotalCards    int    `db:"total_cards" json:"total_cards"`
	ApprovedCards int    `db:"approved_cards" json:"approved_cards"`
	RejectedCards int    `db:"rejected_cards" json:"rejected_cards"`
}

func displayName(username, firstName string) string {
	if username != "" {
		return "@" + username
	}
	if firstName != "" {
		return firstName
	}
	return "Без username"
}

// FormatMoney renders an amount with two decimal places.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
