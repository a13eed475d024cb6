package shieldsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestDetermineBatchSize(t *testing.T) {
	cases := []struct {
		orderCount int64
		want       int
	}{
		{0, 100},
		{1000, 100},
		{1001, 50},
		{5000, 50},
		{5001, 25},
		{10000, 25},
		{10001, 10},
		{250000, 10},
	}
	for _, tc := range cases {
		if got := DetermineBatchSize(tc.orderCount); got != tc.want {
			t.Errorf("DetermineBatchSize(%d) = %d, want %d", tc.orderCount, got, tc.want)
		}
	}
}

func TestDetermineWaitTime(t *testing.T) {
	cases := []struct {
		batchSize int
		want      int
	}{
		{100, 10},
		{50, 5},
		{25, 2},
		{10, 2},
	}
	for _, tc := range cases {
		if got := DetermineWaitTime(tc.batchSize); got != tc.want {
			t.Errorf("DetermineWaitTime(%d) = %d, want %d", tc.batchSize, got, tc.want)
		}
	}
}

func TestParseRecoverRange(t *testing.T) {
	from, to, ok := ParseRecoverRange("2024-03-01", "2024-03-05")
	if !ok {
		t.Fatalf("expected valid range")
	}
	if !from.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected lower bound %v", from)
	}
	// Date-only upper bound must cover the whole day.
	if !to.Equal(time.Date(2024, 3, 5, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("unexpected upper bound %v", to)
	}

	if _, _, ok := ParseRecoverRange("2024-03-05", "2024-03-01"); ok {
		t.Fatalf("inverted range must be rejected")
	}
	if _, _, ok := ParseRecoverRange("not-a-date", "2024-03-01"); ok {
		t.Fatalf("garbage input must be rejected")
	}
	if _, _, ok := ParseRecoverRange("", "2024-03-01"); ok {
		t.Fatalf("empty bound must be rejected")
	}
	if _, _, ok := ParseRecoverRange("2024-03-01T10:00:00Z", "2024-03-01 18:30:00"); !ok {
		t.Fatalf("timestamp bounds must be accepted")
	}
}

func newRecoverRouter(store *fakeStore, meta *fakeMeta, client *fakeClient) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := newTestEngine(store, meta, client, newFakeSettings())
	handlers := NewRecoverHandlers(engine, store)

	r := gin.New()
	r.POST("/api/recover/initiate", handlers.InitiateHandler())
	r.POST("/api/recover/batch", handlers.ProcessBatchHandler())
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) (int, map[string]json.RawMessage) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w.Code, decoded
}

func jsonInt(t *testing.T, m map[string]json.RawMessage, key string) int {
	t.Helper()
	var v int
	if err := json.Unmarshal(m[key], &v); err != nil {
		t.Fatalf("field %q not an int: %v", key, err)
	}
	return v
}

func jsonString(m map[string]json.RawMessage, key string) string {
	var v string
	_ = json.Unmarshal(m[key], &v)
	return v
}

func TestRecoverInitiate_Validation(t *testing.T) {
	meta := newFakeMeta()
	r := newRecoverRouter(newFakeStore(meta), meta, &fakeClient{})

	code, body := postJSON(t, r, "/api/recover/initiate", map[string]string{"dateFrom": "2024-03-01"})
	if code != http.StatusBadRequest {
		t.Fatalf("missing dateTo must be 400, got %d", code)
	}
	if got := jsonString(body, "error"); got != "dateFrom and dateTo are required" {
		t.Fatalf("unexpected error %q", got)
	}

	code, body = postJSON(t, r, "/api/recover/initiate", map[string]string{
		"dateFrom": "2024-03-05", "dateTo": "2024-03-01",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("inverted range must be 400, got %d", code)
	}
	if got := jsonString(body, "error"); got != "invalid date range" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestRecoverProtocol_EndToEnd(t *testing.T) {
	meta := newFakeMeta()
	store := newFakeStore(meta)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 1200; i++ {
		order := testOrder(uint(i + 1))
		order.OrderNumber = fmt.Sprintf("VS-%04d", i+1)
		order.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		store.orders = append(store.orders, order)
	}
	r := newRecoverRouter(store, meta, &fakeClient{})

	code, body := postJSON(t, r, "/api/recover/initiate", map[string]string{
		"dateFrom": "2024-03-01", "dateTo": "2024-03-02",
	})
	if code != http.StatusOK {
		t.Fatalf("initiate failed with %d", code)
	}
	if got := jsonInt(t, body, "orderCount"); got != 1200 {
		t.Fatalf("expected 1200 orders, got %d", got)
	}
	batchSize := jsonInt(t, body, "batchSize")
	if batchSize != 50 {
		t.Fatalf("expected batch size 50, got %d", batchSize)
	}
	if got := jsonInt(t, body, "waitTime"); got != 5 {
		t.Fatalf("expected wait time 5, got %d", got)
	}

	processed := 0
	for offset := 0; ; offset += batchSize {
		code, body := postJSON(t, r, "/api/recover/batch", map[string]interface{}{
			"dateFrom":  "2024-03-01",
			"dateTo":    "2024-03-02",
			"batchSize": batchSize,
			"offset":    offset,
		})
		if code != http.StatusOK {
			t.Fatalf("batch at offset %d failed with %d", offset, code)
		}
		if jsonString(body, "error") == "no more orders" {
			break
		}
		processed += jsonInt(t, body, "processed")
		if offset > 1200 {
			t.Fatalf("protocol did not terminate")
		}
	}

	if processed != 1200 {
		t.Fatalf("expected 1200 processed in total, got %d", processed)
	}
	if len(store.saved) != 1200 {
		t.Fatalf("default mode must force-save every order, saved %d", len(store.saved))
	}
}

func TestRecoverBatch_ReconcileModeUsesReadOnlyPath(t *testing.T) {
	meta := newFakeMeta()
	store := newFakeStore(meta)
	order := testOrder(1)
	order.CreatedAt = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.orders = append(store.orders, order)

	client := &fakeClient{
		getOrderFn: func(orderID uint) (Result, error) {
			return Result{Status: 200, Body: []byte(`{"id":"ro_1","order_number":"VS-1001","insured_status":"insured_selected","paid_to_insure":0.98}`)}, nil
		},
	}
	r := newRecoverRouter(store, meta, client)

	code, body := postJSON(t, r, "/api/recover/batch", map[string]interface{}{
		"dateFrom":  "2024-03-01",
		"dateTo":    "2024-03-01",
		"batchSize": 100,
		"offset":    0,
		"reconcile": true,
	})
	if code != http.StatusOK {
		t.Fatalf("batch failed with %d", code)
	}
	if got := jsonInt(t, body, "processed"); got != 1 {
		t.Fatalf("expected 1 processed, got %d", got)
	}
	if len(store.saved) != 0 {
		t.Fatalf("reconcile mode must not force-save, saved %v", store.saved)
	}
	if got := meta.values[1][MetaRemoteOrderID]; got != "ro_1" {
		t.Fatalf("expected backfilled remote id, got %q", got)
	}
	if client.calls.createOrder != 0 {
		t.Fatalf("reconcile mode must never create remote orders")
	}
}

func TestRecoverBatch_RespectsDateBounds(t *testing.T) {
	meta := newFakeMeta()
	store := newFakeStore(meta)

	inside := testOrder(1)
	inside.CreatedAt = time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	before := testOrder(2)
	before.CreatedAt = time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC)
	after := testOrder(3)
	after.CreatedAt = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	lastSecond := testOrder(4)
	lastSecond.CreatedAt = time.Date(2024, 3, 3, 23, 59, 59, 0, time.UTC)
	store.orders = append(store.orders, inside, before, after, lastSecond)

	r := newRecoverRouter(store, meta, &fakeClient{})

	code, body := postJSON(t, r, "/api/recover/batch", map[string]interface{}{
		"dateFrom":  "2024-03-01",
		"dateTo":    "2024-03-03",
		"batchSize": 100,
		"offset":    0,
	})
	if code != http.StatusOK {
		t.Fatalf("batch failed with %d", code)
	}
	if got := jsonInt(t, body, "processed"); got != 2 {
		t.Fatalf("expected only the in-range orders, processed %d", got)
	}
	for _, id := range store.saved {
		if id == 2 || id == 3 {
			t.Fatalf("out-of-range order %d must never be touched", id)
		}
	}
}
