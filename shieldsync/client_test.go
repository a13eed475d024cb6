package shieldsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newEnvClient(t *testing.T, baseURL string) Client {
	t.Helper()
	t.Setenv("SHIELD_API_BASE_URL", baseURL)
	t.Setenv("SHIELD_API_KEY", "test-key")
	// Keep the limiter effectively off for tests.
	t.Setenv("SHIELD_RATE_LIMIT_PER_MIN", "6000000")

	client, err := NewClient()
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("SHIELD_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatalf("missing api key must be rejected")
	}
}

func TestClientRequests(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-API-Key")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	client := newEnvClient(t, srv.URL)
	ctx := context.Background()

	res, err := client.GetOrder(ctx, 42)
	if err != nil {
		t.Fatalf("http-level outcomes must not be errors: %v", err)
	}
	if res.Status != 404 {
		t.Fatalf("expected status 404, got %d", res.Status)
	}
	if gotPath != "/v1/orders/42" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header missing, got %q", gotKey)
	}

	if _, err := client.GetShipment(ctx, "TN 1/2", 7); err != nil {
		t.Fatalf("get shipment failed: %v", err)
	}
	if gotPath != "/v1/shipments/TN%201%2F2" {
		t.Fatalf("tracking number must be path-escaped, got %q", gotPath)
	}
	if gotQuery != "source_order_id=7" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newEnvClient(t, srv.URL)
	if _, err := client.GetOrder(context.Background(), 1); err == nil {
		t.Fatalf("refused connection must surface as an error")
	}
}
