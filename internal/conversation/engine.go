// Package conversation drives the multi-step chat flows: card creation,
// withdrawal requests and the admin card edit. Each actor has at most one
// open flow, persisted through a Store between turns.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
)

// ErrIdle is returned by Handle when the actor has no open flow.
var ErrIdle = errors.New("conversation: no open flow")

// Ledger is the part of the service layer the flows commit to.
type Ledger interface {
	CreateCard(ctx context.Context, owner *models.User, draft models.CardDraft) (*models.Card, error)
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	CreateWithdrawalRequest(ctx context.Context, user *models.User, amount decimal.Decimal, requisites string) (*models.WithdrawalRequest, error)
	UpdateCardField(ctx context.Context, cardID int64, edit models.CardEdit) (*models.Card, error)
}

// Keyboard names the reply keyboard the transport should show with a Reply.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardCancel
	KeyboardPhoto
	KeyboardAttributes
	KeyboardMain
)

type Reply struct {
	Text     string
	Keyboard Keyboard
}

// Input is what an actor sent: text, a photo, or both (photo caption).
type Input struct {
	Text        string
	PhotoFileID string
}

const (
	CancelButton = "❌ Отмена"
	SkipButton   = "Пропустить"
)

// Session data keys.
const (
	keyTitle       = "title"
	keyDescription = "description"
	keyPrice       = "price"
	keyAmount      = "amount"
	keyCardID      = "card_id"
	keyField       = "field"
)

type Options struct {
	MinWithdrawal decimal.Decimal
	// TTL expires idle sessions; zero keeps them until completed or cancelled.
	TTL time.Duration
}

type Engine struct {
	store  Store
	ledger Ledger
	opts   Options
	now    func() time.Time
}

func NewEngine(store Store, ledger Ledger, opts Options) *Engine {
	return &Engine{store: store, ledger: ledger, opts: opts, now: time.Now}
}

// IsCancel reports whether text is one of the cancel words.
func IsCancel(text string) bool {
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "/cancel", "отмена", "cancel":
		return true
	}
	return text == CancelButton
}

func isSkip(text string) bool {
	text = strings.TrimSpace(text)
	return text == "/skip" || strings.EqualFold(text, SkipButton)
}

// Active reports whether the actor has an open flow.
func (e *Engine) Active(ctx context.Context, actorID int64) (bool, error) {
	session, err := e.load(ctx, actorID)
	if err != nil {
		return false, err
	}
	return session != nil, nil
}

func (e *Engine) StartCard(ctx context.Context, actorID int64) (Reply, error) {
	if err := e.save(ctx, actorID, &Session{State: StateCardTitle}); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Введите название товара:", Keyboard: KeyboardCancel}, nil
}

func (e *Engine) StartWithdrawal(ctx context.Context, actorID int64) (Reply, error) {
	if err := e.save(ctx, actorID, &Session{State: StateWithdrawAmount}); err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:     fmt.Sprintf("Введите сумму для вывода (минимум %s руб.):", models.FormatMoney(e.opts.MinWithdrawal)),
		Keyboard: KeyboardCancel,
	}, nil
}

func (e *Engine) StartEdit(ctx context.Context, actorID, cardID int64) (Reply, error) {
	session := &Session{
		State: StateEditAttribute,
		Data:  map[string]string{keyCardID: strconv.FormatInt(cardID, 10)},
	}
	if err := e.save(ctx, actorID, session); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Выберите атрибут для изменения:", Keyboard: KeyboardAttributes}, nil
}

// Cancel drops the actor's open flow, if any.
func (e *Engine) Cancel(ctx context.Context, actorID int64) (Reply, error) {
	session, err := e.load(ctx, actorID)
	if err != nil {
		return Reply{}, err
	}
	if session == nil {
		return Reply{Text: "Нет активного действия для отмены.", Keyboard: KeyboardMain}, nil
	}
	if err := e.store.Delete(ctx, actorID); err != nil {
		return Reply{}, err
	}

	text := "Действие отменено."
	switch session.State.Flow() {
	case FlowCard:
		text = "Создание карточки отменено."
	case FlowWithdraw:
		text = "Вывод средств отменен."
	case FlowEdit:
		text = "Редактирование карточки отменено."
	}
	return Reply{Text: text, Keyboard: KeyboardMain}, nil
}

// Handle feeds one input into the actor's open flow. Infrastructure errors
// are returned as is and leave the session untouched so the step can be
// retried.
func (e *Engine) Handle(ctx context.Context, user *models.User, in Input) (Reply, error) {
	actorID := user.TelegramID
	if IsCancel(in.Text) {
		return e.Cancel(ctx, actorID)
	}

	session, err := e.load(ctx, actorID)
	if err != nil {
		return Reply{}, err
	}
	if session == nil {
		return Reply{}, ErrIdle
	}

	switch session.State {
	case StateCardTitle:
		return e.cardTitle(ctx, actorID, session, in)
	case StateCardDescription:
		return e.cardDescription(ctx, actorID, session, in)
	case StateCardPrice:
		return e.cardPrice(ctx, actorID, session, in)
	case StateCardPhoto:
		return e.cardPhoto(ctx, user, session, in)
	case StateWithdrawAmount:
		return e.withdrawAmount(ctx, user, session, in)
	case StateWithdrawRequisites:
		return e.withdrawRequisites(ctx, user, session, in)
	case StateEditAttribute:
		return e.editAttribute(ctx, actorID, session, in)
	case StateEditValue:
		return e.editValue(ctx, user, session, in)
	}

	// Unknown state, e.g. written by a newer build. Start over.
	if err := e.store.Delete(ctx, actorID); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Сессия устарела, начните заново.", Keyboard: KeyboardMain}, nil
}

// Card creation

func (e *Engine) cardTitle(ctx context.Context, actorID int64, s *Session, in Input) (Reply, error) {
	title, reason := ParseTitle(in.Text)
	if reason != "" {
		return Reply{Text: reason, Keyboard: KeyboardCancel}, nil
	}
	s.State = StateCardDescription
	s.Data[keyTitle] = title
	if err := e.save(ctx, actorID, s); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Введите описание товара:", Keyboard: KeyboardCancel}, nil
}

func (e *Engine) cardDescription(ctx context.Context, actorID int64, s *Session, in Input) (Reply, error) {
	description, reason := ParseDescription(in.Text)
	if reason != "" {
		return Reply{Text: reason, Keyboard: KeyboardCancel}, nil
	}
	s.State = StateCardPrice
	s.Data[keyDescription] = description
	if err := e.save(ctx, actorID, s); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Введите цену товара (только число):", Keyboard: KeyboardCancel}, nil
}

func (e *Engine) cardPrice(ctx context.Context, actorID int64, s *Session, in Input) (Reply, error) {
	price, reason := ParsePrice(in.Text)
	if reason != "" {
		return Reply{Text: reason, Keyboard: KeyboardCancel}, nil
	}
	s.State = StateCardPhoto
	s.Data[keyPrice] = price.String()
	if err := e.save(ctx, actorID, s); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Отправьте фото товара (или /skip чтобы пропустить):", Keyboard: KeyboardPhoto}, nil
}

func (e *Engine) cardPhoto(ctx context.Context, user *models.User, s *Session, in Input) (Reply, error) {
	if in.PhotoFileID == "" && !isSkip(in.Text) {
		return Reply{Text: "Отправьте фото товара или нажмите «Пропустить».", Keyboard: KeyboardPhoto}, nil
	}

	price, err := decimal.NewFromString(s.Data[keyPrice])
	if err != nil {
		return Reply{}, apperr.NewInternal("conversation.cardPhoto", err)
	}
	draft := models.CardDraft{
		Title:       s.Data[keyTitle],
		Description: s.Data[keyDescription],
		Price:       price,
		PhotoFileID: in.PhotoFileID,
	}
	if _, err := e.ledger.CreateCard(ctx, user, draft); err != nil {
		return Reply{}, err
	}
	if err := e.store.Delete(ctx, user.TelegramID); err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:     "✅ Карточка товара создана и отправлена на модерацию!\nОжидайте одобрения администратора.",
		Keyboard: KeyboardMain,
	}, nil
}

// Withdrawal

func (e *Engine) withdrawAmount(ctx context.Context, user *models.User, s *Session, in Input) (Reply, error) {
	amount, ok := ParseAmount(in.Text)
	if !ok {
		return Reply{Text: "Введите корректную сумму (положительное число).", Keyboard: KeyboardCancel}, nil
	}
	if amount.LessThan(e.opts.MinWithdrawal) {
		return Reply{
			Text:     fmt.Sprintf("Минимальная сумма вывода: %s руб.", models.FormatMoney(e.opts.MinWithdrawal)),
			Keyboard: KeyboardCancel,
		}, nil
	}
	balance, err := e.ledger.Balance(ctx, user.ID)
	if err != nil {
		return Reply{}, err
	}
	if amount.GreaterThan(balance) {
		return Reply{Text: "Недостаточно средств на балансе.", Keyboard: KeyboardCancel}, nil
	}

	s.State = StateWithdrawRequisites
	s.Data[keyAmount] = amount.String()
	if err := e.save(ctx, user.TelegramID, s); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Введите реквизиты для вывода (карта, кошелек и т.п.):", Keyboard: KeyboardCancel}, nil
}

func (e *Engine) withdrawRequisites(ctx context.Context, user *models.User, s *Session, in Input) (Reply, error) {
	requisites := strings.TrimSpace(in.Text)
	if requisites == "" {
		return Reply{Text: "Реквизиты не могут быть пустыми. Введите реквизиты для вывода:", Keyboard: KeyboardCancel}, nil
	}
	amount, err := decimal.NewFromString(s.Data[keyAmount])
	if err != nil {
		return Reply{}, apperr.NewInternal("conversation.withdrawRequisites", err)
	}

	request, err := e.ledger.CreateWithdrawalRequest(ctx, user, amount, requisites)
	if err != nil {
		if apperr.KindOf(err) != apperr.Validation {
			return Reply{}, err
		}
		// The balance may have changed since the amount step.
		if derr := e.store.Delete(ctx, user.TelegramID); derr != nil {
			return Reply{}, derr
		}
		return Reply{Text: apperr.MessageOf(err), Keyboard: KeyboardMain}, nil
	}

	if err := e.store.Delete(ctx, user.TelegramID); err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:     fmt.Sprintf("Заявка на вывод на сумму %s руб. создана и отправлена администратору.", models.FormatMoney(request.Amount)),
		Keyboard: KeyboardMain,
	}, nil
}

// Admin edit

func (e *Engine) editAttribute(ctx context.Context, actorID int64, s *Session, in Input) (Reply, error) {
	field, ok := ParseAttribute(in.Text)
	if !ok {
		return Reply{Text: "Выберите атрибут кнопкой ниже:", Keyboard: KeyboardAttributes}, nil
	}
	s.State = StateEditValue
	s.Data[keyField] = string(field)
	if err := e.save(ctx, actorID, s); err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:     fmt.Sprintf("Введите новое значение для «%s»:", fieldLabel(field)),
		Keyboard: KeyboardCancel,
	}, nil
}

func (e *Engine) editValue(ctx context.Context, user *models.User, s *Session, in Input) (Reply, error) {
	if !user.IsAdmin {
		if err := e.store.Delete(ctx, user.TelegramID); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "Недостаточно прав.", Keyboard: KeyboardMain}, nil
	}

	edit, reason := ParseEdit(models.CardField(s.Data[keyField]), in.Text)
	if reason != "" {
		return Reply{Text: reason, Keyboard: KeyboardCancel}, nil
	}
	cardID, err := strconv.ParseInt(s.Data[keyCardID], 10, 64)
	if err != nil {
		return Reply{}, apperr.NewInternal("conversation.editValue", err)
	}

	if _, err := e.ledger.UpdateCardField(ctx, cardID, edit); err != nil {
		switch apperr.KindOf(err) {
		case apperr.NotFound, apperr.Conflict, apperr.Validation:
			if derr := e.store.Delete(ctx, user.TelegramID); derr != nil {
				return Reply{}, derr
			}
			return Reply{Text: apperr.MessageOf(err), Keyboard: KeyboardMain}, nil
		}
		return Reply{}, err
	}

	if err := e.store.Delete(ctx, user.TelegramID); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "✅ Карточка обновлена.", Keyboard: KeyboardMain}, nil
}

func (e *Engine) load(ctx context.Context, actorID int64) (*Session, error) {
	session, err := e.store.Get(ctx, actorID)
	if err != nil || session == nil {
		return nil, err
	}
	if e.opts.TTL > 0 && e.now().Sub(session.UpdatedAt) > e.opts.TTL {
		if err := e.store.Delete(ctx, actorID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if session.Data == nil {
		session.Data = map[string]string{}
	}
	return session, nil
}

func (e *Engine) save(ctx context.Context, actorID int64, session *Session) error {
	if session.Data == nil {
		session.Data = map[string]string{}
	}
	session.UpdatedAt = e.now()
	return e.store.Save(ctx, actorID, session)
}
