package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/streamhouse/eventpipe/internal/events"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeDB records statements and answers the event-id existence probe.
type fakeDB struct {
	eventApplied bool
	queryRowErr  error
	execErr      error

	queryRowSQL  []string
	queryRowArgs [][]any
	execSQL      []string
	execArgs     [][]any
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported by fake")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.queryRowSQL = append(f.queryRowSQL, sql)
	f.queryRowArgs = append(f.queryRowArgs, args)
	return fakeRow{scan: func(dest ...any) error {
		if f.queryRowErr != nil {
			return f.queryRowErr
		}
		*(dest[0].(*bool)) = f.eventApplied
		return nil
	}}
}

func TestApplyInsertsWhenEventIsNew(t *testing.T) {
	db := &fakeDB{eventApplied: false}
	repo := NewRepository(db)

	ts := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	ev := events.Event{
		Envelope: events.Envelope{EventID: "e1", EventType: events.TypeUserCreated, Timestamp: ts},
		Payload:  events.UserCreated{UserID: "u1", Email: "u1@x.com", Name: "A"},
	}

	if err := repo.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if len(db.queryRowSQL) != 1 || !strings.Contains(db.queryRowSQL[0], "FROM users") {
		t.Errorf("existence probe = %v", db.queryRowSQL)
	}
	if got := db.queryRowArgs[0]; len(got) != 1 || got[0] != "e1" {
		t.Errorf("probe args = %v", got)
	}
	if len(db.execSQL) != 1 {
		t.Fatalf("exec count = %d, want 1", len(db.execSQL))
	}
	if !strings.Contains(db.execSQL[0], "INSERT INTO users") || !strings.Contains(db.execSQL[0], "ON CONFLICT (user_id)") {
		t.Errorf("upsert sql = %s", db.execSQL[0])
	}
	want := []any{"u1", "u1@x.com", "A", ts, "e1"}
	got := db.execArgs[0]
	if len(got) != len(want) {
		t.Fatalf("exec args = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestApplySkipsWriteOnDuplicateEventID(t *testing.T) {
	db := &fakeDB{eventApplied: true}
	repo := NewRepository(db)

	ev := events.Event{
		Envelope: events.Envelope{EventID: "e1", EventType: events.TypeOrderPlaced, Timestamp: time.Now()},
		Payload:  events.OrderPlaced{OrderID: "o1", UserID: "u1", Amount: json.Number("10"), Status: "Placed"},
	}

	if err := repo.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(db.execSQL) != 0 {
		t.Errorf("duplicate event id must not write, got %v", db.execSQL)
	}
}

func TestApplyAmountPassedAsDecimalString(t *testing.T) {
	db := &fakeDB{}
	repo := NewRepository(db)

	ev := events.Event{
		Envelope: events.Envelope{EventID: "e2", EventType: events.TypePaymentSettled, Timestamp: time.Now()},
		Payload:  events.PaymentSettled{PaymentID: "p1", OrderID: "o1", Amount: json.Number("123.45"), Status: "Settled"},
	}

	if err := repo.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := db.execArgs[0][2]; got != "123.45" {
		t.Errorf("amount arg = %v (%T), want string 123.45", got, got)
	}
}

func TestApplySurfacesStoreFailure(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection reset")}
	repo := NewRepository(db)

	ev := events.Event{
		Envelope: events.Envelope{EventID: "e3", EventType: events.TypeInventoryAdjusted, Timestamp: time.Now()},
		Payload:  events.InventoryAdjusted{Sku: "SKU-001", QuantityChange: 1, NewQuantity: 5},
	}

	if err := repo.Apply(context.Background(), ev); err == nil {
		t.Fatal("want error when exec fails")
	}

	db = &fakeDB{queryRowErr: errors.New("connection reset")}
	repo = NewRepository(db)
	if err := repo.Apply(context.Background(), ev); err == nil {
		t.Fatal("want error when existence probe fails")
	}
}
