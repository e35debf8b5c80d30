package anchor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLBatchStore is the durable Store backing production deployments. It
// reaches the same database as the eventstore.SQLStore (same DATABASE_URL)
// through its own *sql.DB handle, so batch and event writes commit in
// separate transactions.
type SQLBatchStore struct {
	db      *sql.DB
	dialect string // "sqlite" or "postgres", mirrors eventstore.Dialect
}

// NewSQLBatchStore wraps an already-open database handle and ensures the
// anchor_batches table exists.
func NewSQLBatchStore(db *sql.DB, dialect string) (*SQLBatchStore, error) {
	s := &SQLBatchStore{db: db, dialect: dialect}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLBatchStore) migrate(ctx context.Context) error {
	var ddl string
	if s.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS anchor_batches (
	id             TEXT PRIMARY KEY,
	merkle_root    TEXT NOT NULL,
	start_sequence BIGINT NOT NULL,
	end_sequence   BIGINT NOT NULL,
	event_count    INTEGER NOT NULL,
	status         TEXT NOT NULL,
	results        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	anchored_at    TIMESTAMPTZ
);`
	} else {
		ddl = `
CREATE TABLE IF NOT EXISTS anchor_batches (
	id             TEXT PRIMARY KEY,
	merkle_root    TEXT NOT NULL,
	start_sequence INTEGER NOT NULL,
	end_sequence   INTEGER NOT NULL,
	event_count    INTEGER NOT NULL,
	status         TEXT NOT NULL,
	results        TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	anchored_at    TEXT
);`
	}
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("anchor: migrate: %w", err)
	}
	return nil
}

func (s *SQLBatchStore) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLBatchStore) upsert(ctx context.Context, b *Batch) error {
	resultsJSON, err := json.Marshal(b.Results)
	if err != nil {
		return fmt.Errorf("anchor: marshal results: %w", err)
	}

	var anchoredAt sql.NullString
	if b.AnchoredAt != nil {
		anchoredAt = sql.NullString{String: b.AnchoredAt.Format(time.RFC3339Nano), Valid: true}
	}

	q := fmt.Sprintf(`INSERT INTO anchor_batches
		(id, merkle_root, start_sequence, end_sequence, event_count, status, results, created_at, anchored_at)
		VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status, results = excluded.results, anchored_at = excluded.anchored_at`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9))

	_, err = s.db.ExecContext(ctx, q, b.ID, b.MerkleRoot, b.StartSequence, b.EndSequence,
		b.EventCount, string(b.Status), string(resultsJSON), b.CreatedAt.Format(time.RFC3339Nano), anchoredAt)
	if err != nil {
		return fmt.Errorf("anchor: upsert: %w", err)
	}
	return nil
}

func (s *SQLBatchStore) Create(ctx context.Context, b *Batch) error { return s.upsert(ctx, b) }
func (s *SQLBatchStore) Update(ctx context.Context, b *Batch) error { return s.upsert(ctx, b) }

func (s *SQLBatchStore) scan(row interface{ Scan(...any) error }) (*Batch, error) {
	var b Batch
	var status, resultsJSON, createdAt string
	var anchoredAt sql.NullString

	err := row.Scan(&b.ID, &b.MerkleRoot, &b.StartSequence, &b.EndSequence, &b.EventCount,
		&status, &resultsJSON, &createdAt, &anchoredAt)
	if err == sql.ErrNoRows {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("anchor: scan: %w", err)
	}

	b.Status = Status(status)
	if err := json.Unmarshal([]byte(resultsJSON), &b.Results); err != nil {
		return nil, fmt.Errorf("anchor: unmarshal results: %w", err)
	}
	b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("anchor: parse created_at: %w", err)
	}
	if anchoredAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, anchoredAt.String)
		if err != nil {
			return nil, fmt.Errorf("anchor: parse anchored_at: %w", err)
		}
		b.AnchoredAt = &t
	}
	return &b, nil
}

const selectCols = `id, merkle_root, start_sequence, end_sequence, event_count, status, results, created_at, anchored_at`

func (s *SQLBatchStore) Get(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM anchor_batches WHERE id = %s`, selectCols, s.ph(1)), id)
	return s.scan(row)
}

func (s *SQLBatchStore) Range(ctx context.Context, id string) (uint64, uint64, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	return b.StartSequence, b.EndSequence, nil
}

func (s *SQLBatchStore) ListByStatus(ctx context.Context, status Status) ([]*Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM anchor_batches WHERE status = %s ORDER BY created_at ASC`, selectCols, s.ph(1)),
		string(status))
	if err != nil {
		return nil, fmt.Errorf("anchor: list by status: %w", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *SQLBatchStore) List(ctx context.Context) ([]*Batch, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM anchor_batches ORDER BY created_at ASC`, selectCols))
	if err != nil {
		return nil, fmt.Errorf("anchor: list: %w", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *SQLBatchStore) collect(rows *sql.Rows) ([]*Batch, error) {
	var results []*Batch
	for rows.Next() {
		b, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

var _ Store = (*SQLBatchStore)(nil)
