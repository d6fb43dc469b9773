package journal

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/coldbell/drift-gateway/internal/gatewaycore"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: db}, mock
}

func TestRecordInsertsPayload(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO account_events").
		WithArgs("sig123", uint8(2), "fills", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := gatewaycore.AccountEvent{Kind: "orderFill", Signature: "sig123"}
	if err := store.Record(context.Background(), "sig123", 2, "fills", event); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unfulfilled expectations: %v", err)
	}
}

func TestForSignatureNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT payload FROM account_events").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	_, err := store.ForSignature(context.Background(), "missing")
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestForSignatureReturnsOrderedEvents(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"payload"}).
		AddRow([]byte(`{"kind":"orderFill","signature":"sig1"}`)).
		AddRow([]byte(`{"kind":"orderExpire","signature":"sig1"}`))
	mock.ExpectQuery("SELECT payload FROM account_events").
		WithArgs("sig1").
		WillReturnRows(rows)

	events, err := store.ForSignature(context.Background(), "sig1")
	if err != nil {
		t.Fatalf("ForSignature: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Kind != "orderFill" || events[1].Kind != "orderExpire" {
		t.Fatalf("events out of order: %+v", events)
	}
}
