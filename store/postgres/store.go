// Package postgres provides a PostgreSQL implementation of store.RecordStore.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/board/store"
)

var _ store.RecordStore = (*Store)(nil)

// uniqueViolation is the SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// Store implements store.RecordStore using PostgreSQL.
type Store struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a PostgreSQL record store. Call Connect to create the schema.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:     db,
		opts:   o,
		logger: o.logger,
	}
}

// NewFromDB wraps a standard sql.DB with sqlx.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Open connects to dsn with the lib/pq driver.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return New(db, opts...), nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Connect pings the database and creates the table and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return errors.New("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to PostgreSQL", "table", s.opts.table)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	t := pq.QuoteIdentifier(s.opts.table)
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'file',
			size BIGINT NOT NULL DEFAULT 0,
			uri TEXT NOT NULL,
			hash TEXT NOT NULL DEFAULT '',
			ref_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, t)
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	hashIdx := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(hash) WHERE hash <> ''`,
		pq.QuoteIdentifier("idx_"+s.opts.table+"_hash"), t)
	if _, err := s.db.ExecContext(ctx, hashIdx); err != nil {
		return fmt.Errorf("create hash index: %w", err)
	}

	sweepIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(created_at) WHERE ref_count <= 0`,
		pq.QuoteIdentifier("idx_"+s.opts.table+"_unreferenced"), t)
	if _, err := s.db.ExecContext(ctx, sweepIdx); err != nil {
		s.logger.Warn("failed to create index", "error", err, "sql", sweepIdx)
	}
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
