package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/board/store"
)

const columns = `id, filename, content_type, kind, size, uri, hash, ref_count, created_at`

func (s *Store) table() string {
	return pq.QuoteIdentifier(s.opts.table)
}

func (s *Store) Create(ctx context.Context, rec *store.Record) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (:id, :filename, :content_type, :kind, :size, :uri, :hash, :ref_count, :created_at)
	`, s.table(), columns)
	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEntry
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*store.Record, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}
	return s.getBy(ctx, "id", id)
}

func (s *Store) GetByHash(ctx context.Context, hash string) (*store.Record, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, store.ErrNotFound
	}
	return s.getBy(ctx, "hash", hash)
}

func (s *Store) getBy(ctx context.Context, column, value string) (*store.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var rec store.Record
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, columns, s.table(), column)
	if err := s.db.GetContext(ctx, &rec, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

func (s *Store) IncrementRef(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET ref_count = ref_count + 1 WHERE id = $1`, s.table())
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment ref: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DecrementRefAndDeleteIfZero runs the decrement and the conditional delete in
// one transaction; the UPDATE row lock serializes concurrent releases.
func (s *Store) DecrementRefAndDeleteIfZero(ctx context.Context, id string) (bool, string, error) {
	if err := s.checkConnected(); err != nil {
		return false, "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var deleted bool
	var uri string
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var row struct {
			RefCount int    `db:"ref_count"`
			URI      string `db:"uri"`
		}
		update := fmt.Sprintf(`UPDATE %s SET ref_count = ref_count - 1 WHERE id = $1 RETURNING ref_count, uri`, s.table())
		if err := tx.GetContext(ctx, &row, update, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("decrement ref: %w", err)
		}
		if row.RefCount > 0 {
			return nil
		}
		del := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table())
		if _, err := tx.ExecContext(ctx, del, id); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		deleted, uri = true, row.URI
		return nil
	})
	if err != nil {
		return false, "", err
	}
	return deleted, uri, nil
}

func (s *Store) DeleteIfUnreferenced(ctx context.Context, id string) (string, error) {
	if err := s.checkConnected(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var uri string
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND ref_count <= 0 RETURNING uri`, s.table())
	err := s.db.GetContext(ctx, &uri, query, id)
	if err == nil {
		return uri, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("delete record: %w", err)
	}

	var exists bool
	check := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, s.table())
	if err := s.db.GetContext(ctx, &exists, check, id); err != nil {
		return "", fmt.Errorf("check record: %w", err)
	}
	if exists {
		return "", store.ErrInUse
	}
	return "", store.ErrNotFound
}

func (s *Store) ListUnreferenced(ctx context.Context, before time.Time, limit int) ([]*store.Record, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.listLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var recs []*store.Record
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ref_count <= 0 AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, columns, s.table())
	if err := s.db.SelectContext(ctx, &recs, query, before, limit); err != nil {
		return nil, fmt.Errorf("list unreferenced: %w", err)
	}
	return recs, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
