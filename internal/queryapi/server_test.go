package queryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/streamhouse/eventpipe/internal/events"
	"github.com/streamhouse/eventpipe/internal/store"
)

func seededStore(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	ctx := context.Background()

	apply := func(ev events.Event) {
		if err := m.Apply(ctx, ev); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	apply(events.Event{
		Envelope: events.Envelope{EventID: "e1", EventType: events.TypeUserCreated, Timestamp: base},
		Payload:  events.UserCreated{UserID: "u1", Email: "u1@x.com", Name: "A"},
	})
	for i := 0; i < 6; i++ {
		apply(events.Event{
			Envelope: events.Envelope{
				EventID:   "oe" + string(rune('0'+i)),
				EventType: events.TypeOrderPlaced,
				Timestamp: base.Add(time.Duration(i) * time.Minute),
			},
			Payload: events.OrderPlaced{
				OrderID: "o" + string(rune('0'+i)),
				UserID:  "u1",
				Amount:  json.Number("25"),
				Status:  "Placed",
			},
		})
	}
	apply(events.Event{
		Envelope: events.Envelope{EventID: "pe1", EventType: events.TypePaymentSettled, Timestamp: base},
		Payload:  events.PaymentSettled{PaymentID: "p1", OrderID: "o1", Amount: json.Number("25"), Status: "Settled"},
	})
	return m
}

func get(t *testing.T, handler http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response to %s is not JSON: %v", path, err)
	}
	return rr, body
}

func TestGetUserWithRecentOrders(t *testing.T) {
	handler := NewServer(seededStore(t)).Handler()

	rr, body := get(t, handler, "/users/u1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	user := body["user"].(map[string]any)
	if user["userId"] != "u1" || user["email"] != "u1@x.com" {
		t.Errorf("user = %v", user)
	}

	orders := body["recentOrders"].([]any)
	if len(orders) != 5 {
		t.Fatalf("recent orders = %d, want 5", len(orders))
	}
	newest := orders[0].(map[string]any)
	if newest["orderId"] != "o5" {
		t.Errorf("newest order = %v, want o5", newest["orderId"])
	}
}

func TestGetUserNotFound(t *testing.T) {
	handler := NewServer(seededStore(t)).Handler()

	rr, body := get(t, handler, "/users/missing")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["error"] != "User not found" {
		t.Errorf("body = %v", body)
	}
}

func TestGetOrderWithPayment(t *testing.T) {
	handler := NewServer(seededStore(t)).Handler()

	rr, body := get(t, handler, "/orders/o1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	order := body["order"].(map[string]any)
	if order["orderId"] != "o1" {
		t.Errorf("order = %v", order)
	}
	payment, ok := body["payment"].(map[string]any)
	if !ok {
		t.Fatalf("payment = %v", body["payment"])
	}
	if payment["paymentId"] != "p1" {
		t.Errorf("payment = %v", payment)
	}
}

func TestGetOrderWithoutPayment(t *testing.T) {
	handler := NewServer(seededStore(t)).Handler()

	rr, body := get(t, handler, "/orders/o2")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["payment"] != nil {
		t.Errorf("payment = %v, want null", body["payment"])
	}
}

func TestGetOrderNotFound(t *testing.T) {
	handler := NewServer(seededStore(t)).Handler()

	rr, body := get(t, handler, "/orders/missing")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["error"] != "Order not found" {
		t.Errorf("body = %v", body)
	}
}

func TestHealth(t *testing.T) {
	handler := NewServer(seededStore(t)).Handler()

	rr, body := get(t, handler, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}
