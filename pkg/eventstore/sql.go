package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect distinguishes the two supported database backends. Both speak
// ANSI SQL closely enough that SQLStore only needs to vary the parameter
// placeholder syntax and the DDL's integer/JSON/timestamp column types.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore is the durable Store backing production deployments. Per the
// concurrency design, a single in-process mutex serializes every Append so
// the read-of-the-tail, hash computation, and insert happen as one logical
// step; this trades a small amount of write throughput for a store that
// never needs unique-index-violation retry logic on the hot path.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex
}

// Open connects to the database identified by dsn. A "postgres://" or
// "postgresql://" scheme selects the Postgres driver; anything else is
// treated as a SQLite file path.
func Open(dsn string) (*SQLStore, error) {
	dialect := DialectSQLite
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect = DialectPostgres
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open %s: %w", driver, err)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	var ddl string
	switch s.dialect {
	case DialectPostgres:
		ddl = `
CREATE TABLE IF NOT EXISTS ledger_events (
	id                 TEXT PRIMARY KEY,
	sequence_number    BIGINT UNIQUE NOT NULL,
	event_type         TEXT NOT NULL,
	actor_id           TEXT NOT NULL,
	policy_decision_id TEXT,
	payload            JSONB NOT NULL,
	previous_hash      TEXT NOT NULL,
	event_hash         TEXT NOT NULL,
	anchor_batch_id    TEXT,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_events_actor ON ledger_events(actor_id);
CREATE INDEX IF NOT EXISTS idx_ledger_events_type ON ledger_events(event_type);
`
	default:
		ddl = `
CREATE TABLE IF NOT EXISTS ledger_events (
	id                 TEXT PRIMARY KEY,
	sequence_number    INTEGER UNIQUE NOT NULL,
	event_type         TEXT NOT NULL,
	actor_id           TEXT NOT NULL,
	policy_decision_id TEXT,
	payload            TEXT NOT NULL,
	previous_hash      TEXT NOT NULL,
	event_hash         TEXT NOT NULL,
	anchor_batch_id    TEXT,
	created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_events_actor ON ledger_events(actor_id);
CREATE INDEX IF NOT EXISTS idx_ledger_events_type ON ledger_events(event_type);
`
	}
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("eventstore: migrate: %w", err)
	}
	return nil
}

func (s *SQLStore) ph(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// tail returns the current sequence number and chain head hash, 0/genesis
// for an empty store.
func (s *SQLStore) tail(ctx context.Context, tx *sql.Tx) (uint64, string, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT sequence_number, event_hash FROM ledger_events ORDER BY sequence_number DESC LIMIT 1`)
	var seq uint64
	var hash string
	err := row.Scan(&seq, &hash)
	if err == sql.ErrNoRows {
		return 0, GenesisHash, nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("eventstore: read tail: %w", err)
	}
	return seq, hash, nil
}

// Append is the sole write path into the chain. It holds the in-process
// mutex for the full read-hash-write sequence so no other goroutine can
// observe or extend a stale tail.
func (s *SQLStore) Append(ctx context.Context, req AppendRequest) (*Event, error) {
	if _, err := actorIDBytes(req.ActorID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("eventstore: begin: %w", err)
	}
	defer tx.Rollback()

	seq, head, err := s.tail(ctx, tx)
	if err != nil {
		return nil, err
	}

	e := &Event{
		ID:               uuid.New().String(),
		Sequence:         seq + 1,
		EventType:        req.EventType,
		ActorID:          req.ActorID,
		PolicyDecisionID: req.PolicyDecisionID,
		Payload:          req.Payload,
		PreviousHash:     head,
		CreatedAt:        time.Now().UTC(),
	}
	hash, err := computeEventHash(e)
	if err != nil {
		return nil, err
	}
	e.EventHash = hash

	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("eventstore: marshal payload: %w", err)
	}

	q := fmt.Sprintf(`INSERT INTO ledger_events
		(id, sequence_number, event_type, actor_id, policy_decision_id, payload, previous_hash, event_hash, anchor_batch_id, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10))

	_, err = tx.ExecContext(ctx, q, e.ID, e.Sequence, string(e.EventType), e.ActorID,
		nullable(e.PolicyDecisionID), string(payloadJSON), e.PreviousHash, e.EventHash,
		nullable(e.AnchorBatchID), e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("eventstore: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("eventstore: commit: %w", err)
	}

	return e, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func (s *SQLStore) scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	var policyDecisionID, anchorBatchID sql.NullString
	var payloadJSON, createdAt string

	err := row.Scan(&e.ID, &e.Sequence, &e.EventType, &e.ActorID, &policyDecisionID,
		&payloadJSON, &e.PreviousHash, &e.EventHash, &anchorBatchID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("eventstore: scan: %w", err)
	}

	e.PolicyDecisionID = policyDecisionID.String
	e.AnchorBatchID = anchorBatchID.String
	if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
		return nil, fmt.Errorf("eventstore: unmarshal payload: %w", err)
	}
	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("eventstore: parse created_at: %w", err)
	}
	return &e, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sequence_number, event_type, actor_id, policy_decision_id, payload, previous_hash, event_hash, anchor_batch_id, created_at
		 FROM ledger_events WHERE id = `+s.ph(1), id)
	return s.scanEvent(row)
}

func (s *SQLStore) GetBySequence(ctx context.Context, seq uint64) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sequence_number, event_type, actor_id, policy_decision_id, payload, previous_hash, event_hash, anchor_batch_id, created_at
		 FROM ledger_events WHERE sequence_number = `+s.ph(1), seq)
	return s.scanEvent(row)
}

// List returns events matching filter, ordered by descending sequence,
// capped at MaxResults (or 500, whichever is smaller).
func (s *SQLStore) List(ctx context.Context, filter Filter) ([]*Event, error) {
	limit := filter.MaxResults
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	var conds []string
	var args []any
	n := 1
	add := func(cond string, val any) {
		conds = append(conds, fmt.Sprintf(cond, s.ph(n)))
		args = append(args, val)
		n++
	}
	if filter.EventType != "" {
		add("event_type = %s", string(filter.EventType))
	}
	if filter.ActorID != "" {
		add("actor_id = %s", filter.ActorID)
	}
	if filter.StartSeq > 0 {
		add("sequence_number >= %s", filter.StartSeq)
	}
	if filter.EndSeq > 0 {
		add("sequence_number <= %s", filter.EndSeq)
	}
	if filter.AnchoredOnly != nil {
		if *filter.AnchoredOnly {
			conds = append(conds, "anchor_batch_id IS NOT NULL")
		} else {
			conds = append(conds, "anchor_batch_id IS NULL")
		}
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	q := fmt.Sprintf(`SELECT id, sequence_number, event_type, actor_id, policy_decision_id, payload, previous_hash, event_hash, anchor_batch_id, created_at
		FROM ledger_events %s ORDER BY sequence_number DESC LIMIT %d`, where, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("eventstore: list: %w", err)
	}
	defer rows.Close()

	var results []*Event
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// Range returns every event with sequence in [start, end] inclusive,
// ordered ascending. Used by VerifyChain and Export.
func (s *SQLStore) Range(ctx context.Context, start, end uint64) ([]*Event, error) {
	q := fmt.Sprintf(`SELECT id, sequence_number, event_type, actor_id, policy_decision_id, payload, previous_hash, event_hash, anchor_batch_id, created_at
		FROM ledger_events WHERE sequence_number >= %s AND sequence_number <= %s ORDER BY sequence_number ASC`,
		s.ph(1), s.ph(2))
	rows, err := s.db.QueryContext(ctx, q, start, end)
	if err != nil {
		return nil, fmt.Errorf("eventstore: range: %w", err)
	}
	defer rows.Close()

	var results []*Event
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// Head returns the current sequence number and chain head hash.
func (s *SQLStore) Head(ctx context.Context) (uint64, string) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, GenesisHash
	}
	defer tx.Rollback()
	seq, hash, err := s.tail(ctx, tx)
	if err != nil {
		return 0, GenesisHash
	}
	return seq, hash
}

// AssociateBatch sets anchor_batch_id on every event in [start, end] that
// doesn't already have one.
func (s *SQLStore) AssociateBatch(ctx context.Context, start, end uint64, batchID string) error {
	q := fmt.Sprintf(`UPDATE ledger_events SET anchor_batch_id = %s
		WHERE sequence_number >= %s AND sequence_number <= %s AND anchor_batch_id IS NULL`,
		s.ph(1), s.ph(2), s.ph(3))
	_, err := s.db.ExecContext(ctx, q, batchID, start, end)
	if err != nil {
		return fmt.Errorf("eventstore: associate batch: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error { return s.db.Close() }
