package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
)

//go:embed schema.sql
var schema string

// Store opens units of work against the ledger.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
}

// Tx is one unit of work. Everything done through a Tx is applied on Commit
// or discarded on Rollback.
type Tx interface {
	Commit() error
	Rollback() error

	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserForUpdate(ctx context.Context, id int64) (*models.User, error)
	// CreateUser inserts user unless its telegram id exists. It reports
	// whether a row was inserted and fills ID and CreatedAt when it was.
	CreateUser(ctx context.Context, user *models.User) (bool, error)
	SetUserAdmin(ctx context.Context, id int64, isAdmin bool) error
	SyncAdmins(ctx context.Context, telegramIDs []int64) (int64, error)
	AddBalance(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error)

	CreateCard(ctx context.Context, card *models.Card) error
	GetCard(ctx context.Context, id int64) (*models.Card, error)
	ListCards(ctx context.Context, q CardQuery) ([]models.Card, error)
	TransitionCard(ctx context.Context, id int64, from, to models.CardStatus) (bool, error)
	UpdatePendingCard(ctx context.Context, id int64, upd models.CardEdit) (bool, error)

	CreatePurchase(ctx context.Context, p *models.Purchase) error
	GetPurchaseByToken(ctx context.Context, token string) (*models.Purchase, error)
	// MarkPurchasePaid flips is_paid for an unpaid purchase in one conditional
	// write and returns it. NotFound when no unpaid purchase has the token.
	MarkPurchasePaid(ctx context.Context, token string, at time.Time) (*models.Purchase, error)

	CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
	GetWithdrawalForUpdate(ctx context.Context, id int64) (*models.WithdrawalRequest, error)
	MarkWithdrawalProcessed(ctx context.Context, id int64, at time.Time) error
	ListPendingWithdrawals(ctx context.Context) ([]models.WithdrawalRequest, error)

	UserStats(ctx context.Context) ([]models.UserStats, error)
}

// CardQuery selects cards with one status. Limit 0 means no limit.
type CardQuery struct {
	Status      models.CardStatus
	NewestFirst bool
	Limit       int
	Offset      int
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Open connects to Postgres through lib/pq.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// Migrate creates missing tables.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.NewInternal("repository.BeginTx", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return apperr.NewInternal("repository.Commit", err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// User methods

const userColumns = `id, telegram_id, username, first_name, last_name, balance, is_admin, created_at`

func (t *pgTx) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := t.tx.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return nil, notFoundOr("repository.GetUserByTelegramID", "user", err)
	}
	return &user, nil
}

func (t *pgTx) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := t.tx.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFoundOr("repository.GetUser", "user", err)
	}
	return &user, nil
}

func (t *pgTx) GetUserForUpdate(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := t.tx.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, notFoundOr("repository.GetUserForUpdate", "user", err)
	}
	return &user, nil
}

func (t *pgTx) CreateUser(ctx context.Context, user *models.User) (bool, error) {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (telegram_id) DO NOTHING
		RETURNING id, balance, created_at
	`, user.TelegramID, user.Username, user.FirstName, user.LastName, user.IsAdmin).Scan(
		&user.ID, &user.Balance, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.NewInternal("repository.CreateUser", err)
	}
	return true, nil
}

func (t *pgTx) SetUserAdmin(ctx context.Context, id int64, isAdmin bool) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE users SET is_admin = $1 WHERE id = $2`, isAdmin, id)
	return expectOne("repository.SetUserAdmin", "user", res, err)
}

func (t *pgTx) SyncAdmins(ctx context.Context, telegramIDs []int64) (int64, error) {
	const op = "repository.SyncAdmins"
	ids := pq.Int64Array(telegramIDs)
	if ids == nil {
		ids = pq.Int64Array{}
	}

	cleared, err := t.tx.ExecContext(ctx, `
		UPDATE users SET is_admin = FALSE
		WHERE is_admin AND NOT (telegram_id = ANY($1))
	`, ids)
	if err != nil {
		return 0, apperr.NewInternal(op, err)
	}
	set, err := t.tx.ExecContext(ctx, `
		UPDATE users SET is_admin = TRUE
		WHERE telegram_id = ANY($1) AND NOT is_admin
	`, ids)
	if err != nil {
		return 0, apperr.NewInternal(op, err)
	}

	n1, _ := cleared.RowsAffected()
	n2, _ := set.RowsAffected()
	return n1 + n2, nil
}

func (t *pgTx) AddBalance(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := t.tx.QueryRowxContext(ctx, `
		UPDATE users SET balance = balance + $1
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance
	`, delta, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := t.tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID); err != nil {
			return decimal.Zero, apperr.NewInternal("repository.AddBalance", err)
		}
		if exists {
			return decimal.Zero, apperr.ErrInsufficientFunds.At("repository.AddBalance")
		}
	}
	if err != nil {
		return decimal.Zero, notFoundOr("repository.AddBalance", "user", err)
	}
	return balance, nil
}

// Card methods

const cardSelect = `
	SELECT c.id, c.title, c.description, c.price, c.photo_file_id, c.status, c.created_at, c.user_id,
	       u.username AS owner_username, u.first_name AS owner_first_name
	FROM cards c
	JOIN users u ON u.id = c.user_id
`

func (t *pgTx) CreateCard(ctx context.Context, card *models.Card) error {
	if card.Status == "" {
		card.Status = models.CardPending
	}
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO cards (title, description, price, photo_file_id, status, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, card.Title, card.Description, card.Price, card.PhotoFileID, card.Status, card.UserID).Scan(
		&card.ID, &card.CreatedAt,
	)
	if err != nil {
		return apperr.NewInternal("repository.CreateCard", err)
	}
	return nil
}

func (t *pgTx) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	var card models.Card
	if err := t.tx.GetContext(ctx, &card, cardSelect+` WHERE c.id = $1`, id); err != nil {
		return nil, notFoundOr("repository.GetCard", "card", err)
	}
	return &card, nil
}

func (t *pgTx) ListCards(ctx context.Context, q CardQuery) ([]models.Card, error) {
	order := ` ORDER BY c.created_at ASC, c.id ASC`
	if q.NewestFirst {
		order = ` ORDER BY c.created_at DESC, c.id DESC`
	}
	query := cardSelect + ` WHERE c.status = $1` + order + ` LIMIT NULLIF($2::bigint, 0) OFFSET $3`

	cards := []models.Card{}
	if err := t.tx.SelectContext(ctx, &cards, query, q.Status, q.Limit, q.Offset); err != nil {
		return nil, apperr.NewInternal("repository.ListCards", err)
	}
	return cards, nil
}

func (t *pgTx) TransitionCard(ctx context.Context, id int64, from, to models.CardStatus) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE cards SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
	return affected("repository.TransitionCard", res, err)
}

func (t *pgTx) UpdatePendingCard(ctx context.Context, id int64, upd models.CardEdit) (bool, error) {
	const op = "repository.UpdatePendingCard"
	var (
		res sql.Result
		err error
	)
	switch upd.Field {
	case models.FieldTitle:
		res, err = t.tx.ExecContext(ctx, `UPDATE cards SET title = $1 WHERE id = $2 AND status = 'pending'`, upd.Text, id)
	case models.FieldDescription:
		res, err = t.tx.ExecContext(ctx, `UPDATE cards SET description = $1 WHERE id = $2 AND status = 'pending'`, upd.Text, id)
	case models.FieldPrice:
		res, err = t.tx.ExecContext(ctx, `UPDATE cards SET price = $1 WHERE id = $2 AND status = 'pending'`, upd.Price, id)
	default:
		return false, apperr.New(apperr.Validation, "unknown_field", "неизвестный атрибут").At(op)
	}
	return affected(op, res, err)
}

func notFoundOr(op, resource string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NewNotFound(op, resource)
	}
	return apperr.NewInternal(op, err)
}

func affected(op string, res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, apperr.NewInternal(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.NewInternal(op, err)
	}
	return n > 0, nil
}

func expectOne(op, resource string, res sql.Result, err error) error {
	ok, err := affected(op, res, err)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NewNotFound(op, resource)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}
