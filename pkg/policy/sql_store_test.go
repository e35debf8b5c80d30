package policy

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS policies").WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewSQLStore(db, "sqlite")
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	return store, mock
}

func TestSQLStore_Create(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	p := &Policy{ID: "p1", Name: "withdrawal-limits", Version: 1, Source: "package guardrail", Dialect: DialectRego, IsActive: true, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec("INSERT INTO policies").
		WithArgs(p.ID, p.Name, p.Version, p.Source, string(p.Dialect), p.IsActive, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Create(context.Background(), p); err != nil {
		t.Errorf("Create: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows := sqlmock.NewRows([]string{"id", "name", "version", "source", "dialect", "is_active", "created_at", "updated_at"}).
		AddRow("p1", "withdrawal-limits", 1, "package guardrail", "rego", true, now, now)

	mock.ExpectQuery("SELECT .* FROM policies WHERE id = ").
		WithArgs("p1").
		WillReturnRows(rows)

	p, err := store.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.ID != "p1" || p.Dialect != DialectRego {
		t.Errorf("unexpected policy: %+v", p)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStore_Activate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows := sqlmock.NewRows([]string{"id", "name", "version", "source", "dialect", "is_active", "created_at", "updated_at"}).
		AddRow("p1-v2", "withdrawal-limits", 2, "package guardrail", "rego", false, now, now)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM policies WHERE id = ").
		WithArgs("p1-v2").
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE policies SET is_active = .*, updated_at = .* WHERE name = ").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE policies SET is_active = .*, updated_at = .* WHERE id = ").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Activate(context.Background(), "p1-v2"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStore_DeactivateNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE policies SET is_active = .*, updated_at = .* WHERE id = ").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Deactivate(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected not-found error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
