package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDetect(t *testing.T) {
	driver, dialect := detect("postgres://u:p@localhost:5432/chat?sslmode=disable")
	assert.Equal(t, "pgx", driver)
	assert.Equal(t, goose.DialectPostgres, dialect)

	driver, dialect = detect("PostgreSQL://localhost/chat")
	assert.Equal(t, "pgx", driver)
	assert.Equal(t, goose.DialectPostgres, dialect)

	driver, dialect = detect("data/db/chat.sqlite")
	assert.Equal(t, "sqlite3", driver)
	assert.Equal(t, goose.DialectSQLite3, dialect)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(1, 0))
	assert.Equal(t, "$1", placeholders(1, 1))
	assert.Equal(t, "$2, $3, $4", placeholders(2, 3))
}

func TestOpen_FileDatabaseCreatesDirectoryAndIsReopenable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "chat.sqlite")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	id, err := s.InsertMessage(ctx, 1, 1000, []byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	msgs, err := s.LastMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, []byte("persisted"), msgs[0].Body)
}

func TestMessages_InsertAndLastInAscendingOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := s.InsertMessage(ctx, 1, int64(1000+i), []byte(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}

	last, err := s.LastMessages(ctx, 3)
	require.NoError(t, err)
	require.Len(t, last, 3)
	assert.Equal(t, []byte("m2"), last[0].Body)
	assert.Equal(t, []byte("m3"), last[1].Body)
	assert.Equal(t, []byte("m4"), last[2].Body)
	assert.Equal(t, int64(1004), last[2].Timestamp)

	all, err := s.LastMessages(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, ids[0], all[0].ID)
}

func TestMessages_AuthorAndConditionalDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.InsertMessage(ctx, 7, 1, []byte("hello"))
	require.NoError(t, err)

	author, err := s.MessageAuthor(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(7), author)

	_, err = s.MessageAuthor(ctx, id+100)
	assert.ErrorIs(t, err, common.ErrNotFound)

	deleted, err := s.DeleteMessage(ctx, id, 8)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = s.DeleteMessage(ctx, id, 7)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.MessageAuthor(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMessages_Clear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertMessage(ctx, 1, 1, []byte("a"))
	require.NoError(t, err)
	require.NoError(t, s.ClearMessages(ctx))

	msgs, err := s.LastMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestUsers_CreateLookupAndNames(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	aliceID, err := s.CreateUser(ctx, "alice", []byte("hash-a"))
	require.NoError(t, err)
	bobID, err := s.CreateUser(ctx, "bob", []byte("hash-b"))
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "alice", []byte("again"))
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	u, err := s.UserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, aliceID, u.ID)
	assert.Equal(t, []byte("hash-a"), u.PasswordHash)

	_, err = s.UserByName(ctx, "nobody")
	assert.ErrorIs(t, err, common.ErrNotFound)

	names, err := s.UserNames(ctx, []int64{aliceID, bobID, 999})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{aliceID: "alice", bobID: "bob"}, names)

	names, err = s.UserNames(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}
