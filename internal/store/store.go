// Package store persists users and chat posts in SQLite or PostgreSQL.
//
// The backend is picked from the DSN: postgres:// and postgresql:// URLs use
// pgx, anything else is treated as a SQLite database path (":memory:"
// included). Schema migrations are embedded and applied with goose on Open.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Tyrowin/chatroom/internal/store/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// Store implements the user and message repositories on top of database/sql.
type Store struct {
	db      *sql.DB
	dialect goose.Dialect
}

// Open connects to dsn and runs pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, dialect := detect(dsn)

	if dialect == goose.DialectSQLite3 {
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if dialect == goose.DialectSQLite3 {
		// One connection keeps :memory: databases alive and serializes writers.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

func detect(dsn string) (driver string, dialect goose.Dialect) {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "pgx", goose.DialectPostgres
	}
	return "sqlite3", goose.DialectSQLite3
}

func ensureDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// RunMigrations applies the embedded migrations for the store's dialect.
func (s *Store) RunMigrations(ctx context.Context) error {
	fsys, err := fs.Sub(migrations.Migrations, string(s.dialect))
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(s.dialect, s.db, fsys)
	if err != nil {
		return err
	}

	_, err = provider.Up(ctx)
	return err
}

// Conn exposes the underlying pool.
func (s *Store) Conn() *sql.DB {
	return s.db
}

// Dialect reports the active SQL dialect.
func (s *Store) Dialect() goose.Dialect {
	return s.dialect
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// placeholders returns "$from, $from+1, ..." for n arguments.
func placeholders(from, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", from+i)
	}
	return b.String()
}
