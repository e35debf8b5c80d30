package policy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guardrail-systems/ledger/pkg/apperr"
)

// SQLStore is the durable Store backing production deployments, sharing
// its *sql.DB with the batch store; the event store reaches the same
// DATABASE_URL through its own handle.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	var ddl string
	if s.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS policies (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	source     TEXT NOT NULL,
	dialect    TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`
	} else {
		ddl = `
CREATE TABLE IF NOT EXISTS policies (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	source     TEXT NOT NULL,
	dialect    TEXT NOT NULL,
	is_active  INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("policy: migrate: %w", err)
	}
	return nil
}

func (s *SQLStore) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

const policyCols = `id, name, version, source, dialect, is_active, created_at, updated_at`

func (s *SQLStore) Create(ctx context.Context, p *Policy) error {
	q := fmt.Sprintf(`INSERT INTO policies (%s) VALUES (%s,%s,%s,%s,%s,%s,%s,%s)`,
		policyCols, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8))
	_, err := s.db.ExecContext(ctx, q, p.ID, p.Name, p.Version, p.Source, string(p.Dialect),
		p.IsActive, p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("policy: create: %w", err)
	}
	return nil
}

func (s *SQLStore) scan(row interface{ Scan(...any) error }) (*Policy, error) {
	var p Policy
	var dialect, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Version, &p.Source, &dialect, &p.IsActive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("policy not found")
	}
	if err != nil {
		return nil, fmt.Errorf("policy: scan: %w", err)
	}
	p.Dialect = Dialect(dialect)
	p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("policy: parse created_at: %w", err)
	}
	p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("policy: parse updated_at: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Policy, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM policies WHERE id = %s`, policyCols, s.ph(1)), id)
	return s.scan(row)
}

func (s *SQLStore) List(ctx context.Context) ([]*Policy, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM policies ORDER BY created_at ASC`, policyCols))
	if err != nil {
		return nil, fmt.Errorf("policy: list: %w", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *SQLStore) Active(ctx context.Context) ([]*Policy, error) {
	q := fmt.Sprintf(`SELECT %s FROM policies WHERE is_active = %s ORDER BY id ASC`, policyCols, s.ph(1))
	rows, err := s.db.QueryContext(ctx, q, true)
	if err != nil {
		return nil, fmt.Errorf("policy: list active: %w", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *SQLStore) collect(rows *sql.Rows) ([]*Policy, error) {
	var out []*Policy
	for rows.Next() {
		p, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Activate marks id active and deactivates every other version sharing its
// name, inside one transaction so the exclusivity invariant always holds.
func (s *SQLStore) Activate(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("policy: begin activate: %w", err)
	}
	defer tx.Rollback()

	target, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE policies SET is_active = %s, updated_at = %s WHERE name = %s`, s.ph(1), s.ph(2), s.ph(3)),
		false, now, target.Name); err != nil {
		return fmt.Errorf("policy: deactivate siblings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE policies SET is_active = %s, updated_at = %s WHERE id = %s`, s.ph(1), s.ph(2), s.ph(3)),
		true, now, id); err != nil {
		return fmt.Errorf("policy: activate: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) Deactivate(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE policies SET is_active = %s, updated_at = %s WHERE id = %s`, s.ph(1), s.ph(2), s.ph(3)),
		false, now, id)
	if err != nil {
		return fmt.Errorf("policy: deactivate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("policy: deactivate rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound(fmt.Sprintf("policy %s not found", id))
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
