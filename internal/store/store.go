package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Config interface {
	DatabaseDriver() string
	DatabaseURL() string
}

type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store is the persistence layer for users, chats, messages and invitations.
// A Store returned by InTx is bound to the transaction and must not escape fn.
type Store struct {
	root *sqlx.DB
	db   queryer
}

func Open(ctx context.Context, config Config) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, config.DatabaseDriver(), config.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if config.DatabaseDriver() == "sqlite3" {
		// sqlite serialises writers anyway, a single connection avoids SQLITE_BUSY inside transactions
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(100)
		db.SetConnMaxLifetime(time.Hour)
	}

	s := &Store{root: db, db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	if s.root == nil {
		return nil
	}
	return s.root.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s.root == nil {
		return nil
	}
	return s.root.PingContext(ctx)
}

// InTx runs fn inside a transaction. Nested calls join the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.root == nil {
		return fn(s)
	}

	tx, err := s.root.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(&Store{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rolling back after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return s.db.GetContext(ctx, dest, s.db.Rebind(query), args...)
}

func (s *Store) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...)
}

func (s *Store) selectIn(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return fmt.Errorf("expanding query: %w", err)
	}
	return s.selectAll(ctx, dest, query, args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows, nil
}
