package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/apperr"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/conversation"
)

// StateStore keeps conversation sessions in the conversation_states table so
// open flows survive a restart.
type StateStore struct {
	db *sqlx.DB
}

func NewStateStore(db *sqlx.DB) *StateStore {
	return &StateStore{db: db}
}

func (s *StateStore) Get(ctx context.Context, actorID int64) (*conversation.Session, error) {
	const op = "repository.StateStore.Get"
	var row struct {
		State     string       `db:"state"`
		Data      []byte       `db:"data"`
		UpdatedAt sql.NullTime `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT state, data, updated_at FROM conversation_states WHERE actor_id = $1`, actorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.NewInternal(op, err)
	}

	session := &conversation.Session{
		State:     conversation.State(row.State),
		Data:      map[string]string{},
		UpdatedAt: row.UpdatedAt.Time,
	}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &session.Data); err != nil {
			return nil, apperr.NewInternal(op, err)
		}
	}
	return session, nil
}

func (s *StateStore) Save(ctx context.Context, actorID int64, session *conversation.Session) error {
	const op = "repository.StateStore.Save"
	data, err := json.Marshal(session.Data)
	if err != nil {
		return apperr.NewInternal(op, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_states (actor_id, state, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (actor_id) DO UPDATE
		SET state = EXCLUDED.state, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, actorID, string(session.State), string(data), session.UpdatedAt)
	if err != nil {
		return apperr.NewInternal(op, err)
	}
	return nil
}

func (s *StateStore) Delete(ctx context.Context, actorID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE actor_id = $1`, actorID); err != nil {
		return apperr.NewInternal("repository.StateStore.Delete", err)
	}
	return nil
}
