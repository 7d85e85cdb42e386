package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/Tyrowin/chatroom/internal/messages"
)

func (s *Store) InsertMessage(ctx context.Context, authorID, timestamp int64, body []byte) (int64, error) {
	query :=
		`INSERT INTO posts (user_id, posted_at, body)
		 VALUES ($1, $2, $3)
		 RETURNING id
		 `

	var id int64
	if err := s.db.QueryRowContext(ctx, query, authorID, timestamp, body).Scan(&id); err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return id, nil
}

func (s *Store) LastMessages(ctx context.Context, limit int) ([]messages.Message, error) {
	query :=
		`SELECT id, user_id, posted_at, body FROM (
		     SELECT id, user_id, posted_at, body FROM posts
		     ORDER BY id DESC
		     LIMIT $1
		 ) recent
		 ORDER BY id ASC
		 `

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	var out []messages.Message
	for rows.Next() {
		var m messages.Message
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.Timestamp, &m.Body); err != nil {
			return nil, fmt.Errorf("error scanning post: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}
	return out, nil
}

func (s *Store) MessageAuthor(ctx context.Context, postID int64) (int64, error) {
	query := `SELECT user_id FROM posts WHERE id = $1`

	var author int64
	err := s.db.QueryRowContext(ctx, query, postID).Scan(&author)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return author, nil
}

func (s *Store) DeleteMessage(ctx context.Context, postID, authorID int64) (bool, error) {
	query := `DELETE FROM posts WHERE id = $1 AND user_id = $2`

	res, err := s.db.ExecContext(ctx, query, postID, authorID)
	if err != nil {
		return false, fmt.Errorf("error performing sql request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n > 0, nil
}

// ClearMessages drops every post.
func (s *Store) ClearMessages(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}
