package conversation

import (
	"context"
	"sync"
	"time"
)

// State names the step an actor's open flow is waiting on.
type State string

const (
	StateCardTitle          State = "card_title"
	StateCardDescription    State = "card_description"
	StateCardPrice          State = "card_price"
	StateCardPhoto          State = "card_photo"
	StateWithdrawAmount     State = "withdraw_amount"
	StateWithdrawRequisites State = "withdraw_requisites"
	StateEditAttribute      State = "edit_attribute"
	StateEditValue          State = "edit_value"
)

// Flow groups states into the user-visible scenario they belong to.
type Flow string

const (
	FlowCard     Flow = "card"
	FlowWithdraw Flow = "withdraw"
	FlowEdit     Flow = "edit"
)

func (s State) Flow() Flow {
	switch s {
	case StateCardTitle, StateCardDescription, StateCardPrice, StateCardPhoto:
		return FlowCard
	case StateWithdrawAmount, StateWithdrawRequisites:
		return FlowWithdraw
	case StateEditAttribute, StateEditValue:
		return FlowEdit
	}
	return ""
}

// Session is an actor's open flow: the awaited step plus the values
// collected so far. No session means the actor is idle.
type Session struct {
	State     State
	Data      map[string]string
	UpdatedAt time.Time
}

func (s *Session) clone() *Session {
	c := &Session{State: s.State, UpdatedAt: s.UpdatedAt, Data: make(map[string]string, len(s.Data))}
	for k, v := range s.Data {
		c.Data[k] = v
	}
	return c
}

// Store persists sessions keyed by actor id. Get returns nil, nil when the
// actor has no session.
type Store interface {
	Get(ctx context.Context, actorID int64) (*Session, error)
	Save(ctx context.Context, actorID int64, session *Session) error
	Delete(ctx context.Context, actorID int64) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*Session)}
}

func (m *MemoryStore) Get(_ context.Context, actorID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[actorID]
	if !ok {
		return nil, nil
	}
	return s.clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, actorID int64, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[actorID] = session.clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, actorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, actorID)
	return nil
}
