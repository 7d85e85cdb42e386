package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Tyrowin/chatroom/internal/auth"
	"github.com/Tyrowin/chatroom/internal/common"
)

func (s *Store) CreateUser(ctx context.Context, username string, passwordHash []byte) (int64, error) {
	query :=
		`INSERT INTO users (username, password_hash)
		 VALUES ($1, $2)
		 RETURNING id
		 `

	var id int64
	if err := s.db.QueryRowContext(ctx, query, username, passwordHash).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("user %q: %w", username, common.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return id, nil
}

func (s *Store) UserByName(ctx context.Context, username string) (auth.User, error) {
	query := `SELECT id, username, password_hash FROM users WHERE username = $1`

	var u auth.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, common.ErrNotFound
		}
		return auth.User{}, fmt.Errorf("error performing sql request: %w", err)
	}
	return u, nil
}

// UserNames resolves every id in one query. Unknown ids are absent from the result.
func (s *Store) UserNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, username FROM users WHERE id IN (` + placeholders(1, len(ids)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		out[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return out, nil
}
