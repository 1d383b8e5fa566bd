// Package callback encodes and parses inline button payloads of the form
// <domain>_<action>[_<position>][_<id>].
package callback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DomainModeration = "mod"
	DomainWithdrawal = "withdraw"
	DomainCatalog    = "card"
	DomainBuy        = "buy"
	DomainBalance    = "balance"
	DomainStats      = "stats"
)

const (
	ActionPrev     = "prev"
	ActionNext     = "next"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionEdit     = "edit"
	ActionProcess  = "process"
	ActionWithdraw = "withdraw"
	ActionRefresh  = "refresh"
)

// Fixed payloads.
const (
	BalanceWithdraw = DomainBalance + "_" + ActionWithdraw
	BalanceRefresh  = DomainBalance + "_" + ActionRefresh
	StatsRefresh    = DomainStats + "_" + ActionRefresh
)

// MaxLen is the largest payload Telegram accepts for callback_data.
const MaxLen = 64

var ErrMalformed = errors.New("malformed callback data")

// Token is a parsed payload. Index and ID are zero when the domain has none.
type Token struct {
	Domain string
	Action string
	Index  int
	ID     int64
}

type layout struct {
	actions  []string
	hasIndex bool
	hasID    bool
}

var layouts = map[string]layout{
	DomainModeration: {actions: []string{ActionPrev, ActionNext, ActionApprove, ActionReject, ActionEdit}, hasIndex: true, hasID: true},
	DomainWithdrawal: {actions: []string{ActionPrev, ActionNext, ActionProcess}, hasIndex: true, hasID: true},
	DomainCatalog:    {actions: []string{ActionPrev, ActionNext}, hasIndex: true},
	DomainBalance:    {actions: []string{ActionWithdraw, ActionRefresh}},
	DomainStats:      {actions: []string{ActionRefresh}},
}

// Parse validates data against the known payload layouts.
func Parse(data string) (Token, error) {
	if data == "" || len(data) > MaxLen {
		return Token{}, fmt.Errorf("%w: %q", ErrMalformed, data)
	}
	parts := strings.Split(data, "_")

	// buy_<id> has no action part.
	if parts[0] == DomainBuy {
		if len(parts) != 2 {
			return Token{}, fmt.Errorf("%w: %q", ErrMalformed, data)
		}
		id, err := parseID(parts[1])
		if err != nil {
			return Token{}, fmt.Errorf("%w: %q", ErrMalformed, data)
		}
		return Token{Domain: DomainBuy, ID: id}, nil
	}

	l, ok := layouts[parts[0]]
	if !ok {
		return Token{}, fmt.Errorf("%w: unknown domain in %q", ErrMalformed, data)
	}
	want := 2
	if l.hasIndex {
		want++
	}
	if l.hasID {
		want++
	}
	if len(parts) != want || !contains(l.actions, parts[1]) {
		return Token{}, fmt.Errorf("%w: %q", ErrMalformed, data)
	}

	tok := Token{Domain: parts[0], Action: parts[1]}
	if l.hasIndex {
		index, err := strconv.Atoi(parts[2])
		if err != nil || index < 0 {
			return Token{}, fmt.Errorf("%w: bad position in %q", ErrMalformed, data)
		}
		tok.Index = index
	}
	if l.hasID {
		id, err := parseID(parts[3])
		if err != nil {
			return Token{}, fmt.Errorf("%w: bad id in %q", ErrMalformed, data)
		}
		tok.ID = id
	}
	return tok, nil
}

func Moderation(action string, index int, cardID int64) string {
	return fmt.Sprintf("%s_%s_%d_%d", DomainModeration, action, index, cardID)
}

func Withdrawal(action string, index int, requestID int64) string {
	return fmt.Sprintf("%s_%s_%d_%d", DomainWithdrawal, action, index, requestID)
}

func Catalog(action string, index int) string {
	return fmt.Sprintf("%s_%s_%d", DomainCatalog, action, index)
}

func Buy(cardID int64) string {
	return fmt.Sprintf("%s_%d", DomainBuy, cardID)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id < 0 {
		return 0, ErrMalformed
	}
	return id, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
