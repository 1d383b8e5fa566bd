package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Validation  Kind = "validation"
	NotFound    Kind = "not_found"
	Conflict    Kind = "conflict"
	Unavailable Kind = "unavailable"
	Internal    Kind = "internal"
)

// Error is the error type returned across service boundaries. Code identifies
// the concrete condition, Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Code    string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s -> %v", e.Kind, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors with the same non-empty code, so sentinels survive At.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// At returns a copy of e bound to the operation op.
func (e *Error) At(op string) *Error {
	c := *e
	c.Op = op
	return &c
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func NewNotFound(op, resource string) *Error {
	return &Error{
		Kind:    NotFound,
		Code:    resource + "_not_found",
		Op:      op,
		Message: resource + " not found",
	}
}

func NewInternal(op string, err error) *Error {
	return &Error{
		Kind:    Internal,
		Code:    "internal",
		Op:      op,
		Message: "internal error",
		Err:     err,
	}
}

// WrapInternal wraps err as Internal unless it already is an *Error.
func WrapInternal(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewInternal(op, err)
}

// KindOf reports the kind of err. Errors not produced by this package are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the user-facing message carried by err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "внутренняя ошибка"
}

func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == NotFound
}

// Sentinels for the ledger and moderation conditions.
var (
	ErrBelowMinimum        = New(Validation, "below_minimum", "сумма меньше минимально допустимой")
	ErrInsufficientBalance = New(Validation, "insufficient_balance", "недостаточно средств для вывода")
	ErrEmptyRequisites     = New(Validation, "empty_requisites", "реквизиты не могут быть пустыми")
	ErrInvalidAmount       = New(Validation, "invalid_amount", "сумма должна быть положительным числом")

	ErrAlreadySettled    = New(Conflict, "already_settled", "счет уже оплачен")
	ErrAlreadyProcessed  = New(Conflict, "already_processed", "заявка уже обработана")
	ErrInsufficientFunds = New(Conflict, "insufficient_funds", "недостаточно средств у пользователя")
	ErrAlreadyModerated  = New(Conflict, "card_already_moderated", "карточка уже прошла модерацию")
	ErrCardNotEditable   = New(Conflict, "card_not_editable", "карточку можно изменить только до модерации")

	ErrCardUnavailable    = New(NotFound, "card_unavailable", "карточка недоступна")
	ErrPaymentUnavailable = New(Unavailable, "payment_unavailable", "оплата временно недоступна")
)
