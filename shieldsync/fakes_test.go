package shieldsync

// DB-free fakes in place of the GORM-backed stores and the Shield HTTP
// client. They implement the same contracts the engine and handlers see in
// production; full DB integration tests belong in an environment that can
// run MySQL.

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/veltashop/shieldsync_backend/models"
)

var errTransport = errors.New("connection refused")

type fakeMeta struct {
	values map[uint]map[string]string
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{values: map[uint]map[string]string{}}
}

func (m *fakeMeta) Get(_ context.Context, orderID uint, key string) (string, bool, error) {
	v, ok := m.values[orderID][key]
	return v, ok, nil
}

func (m *fakeMeta) Set(_ context.Context, orderID uint, values map[string]string) error {
	if m.values[orderID] == nil {
		m.values[orderID] = map[string]string{}
	}
	for k, v := range values {
		m.values[orderID][k] = v
	}
	return nil
}

func (m *fakeMeta) Delete(_ context.Context, orderID uint, keys []string) error {
	for _, k := range keys {
		delete(m.values[orderID], k)
	}
	return nil
}

type fakeStore struct {
	orders []models.Order
	notes  map[uint][]models.OrderNote
	meta   *fakeMeta
	saved  []uint
}

func newFakeStore(meta *fakeMeta) *fakeStore {
	return &fakeStore{notes: map[uint][]models.OrderNote{}, meta: meta}
}

func (s *fakeStore) GetOrder(_ context.Context, id uint) (*models.Order, error) {
	for i := range s.orders {
		if s.orders[i].ID == id {
			return &s.orders[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) matches(order models.Order, f models.OrderFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if st == order.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CreatedFrom != nil && order.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && order.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	for _, key := range f.MetaNotExist {
		if _, ok, _ := s.meta.Get(context.Background(), order.ID, key); ok {
			return false
		}
	}
	for _, key := range f.MetaNotEmpty {
		if v, ok, _ := s.meta.Get(context.Background(), order.ID, key); !ok || v == "" {
			return false
		}
	}
	return true
}

func (s *fakeStore) SelectOrders(_ context.Context, f models.OrderFilter) ([]models.Order, error) {
	var matched []models.Order
	for _, order := range s.orders {
		if s.matches(order, f) {
			matched = append(matched, order)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *fakeStore) CountOrders(ctx context.Context, f models.OrderFilter) (int64, error) {
	matched, err := s.SelectOrders(ctx, f)
	return int64(len(matched)), err
}

func (s *fakeStore) SaveOrder(_ context.Context, order *models.Order) error {
	s.saved = append(s.saved, order.ID)
	return nil
}

func (s *fakeStore) OrderNotes(_ context.Context, orderID uint) ([]models.OrderNote, error) {
	return s.notes[orderID], nil
}

type fakeSettings struct {
	options map[string]string
	install time.Time
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{options: map[string]string{}}
}

func (s *fakeSettings) Option(_ context.Context, key string) (string, bool, error) {
	v, ok := s.options[key]
	return v, ok, nil
}

func (s *fakeSettings) OptionList(ctx context.Context, key string) ([]string, error) {
	raw, ok, _ := s.Option(ctx, key)
	if !ok || raw == "" {
		return nil, nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			part := raw[start:i]
			if part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out, nil
}

func (s *fakeSettings) InstallDate(_ context.Context) (time.Time, error) {
	return s.install, nil
}

type clientCalls struct {
	getOrder       int
	createOrder    int
	getShipment    int
	createShipment int
	cancelShipment int
	created        []string
	cancelled      []string

	createdWebhooks []RemoteWebhook
	updatedWebhooks []RemoteWebhook
}

type fakeClient struct {
	getOrderFn       func(orderID uint) (Result, error)
	createOrderFn    func(payload OrderPayload) (Result, error)
	getShipmentFn    func(trackingNumber string, orderID uint) (Result, error)
	createShipmentFn func(trackingNumber string, payload ShipmentTracking) (Result, error)
	cancelShipmentFn func(trackingNumber string, payload CancelPayload) (Result, error)
	listWebhooksFn   func() (Result, error)
	calls            clientCalls
}

func (c *fakeClient) GetOrder(_ context.Context, orderID uint) (Result, error) {
	c.calls.getOrder++
	if c.getOrderFn == nil {
		return Result{Status: 404}, nil
	}
	return c.getOrderFn(orderID)
}

func (c *fakeClient) CreateOrder(_ context.Context, payload OrderPayload) (Result, error) {
	c.calls.createOrder++
	if c.createOrderFn == nil {
		return Result{Status: 201, Body: []byte(`{}`)}, nil
	}
	return c.createOrderFn(payload)
}

func (c *fakeClient) GetShipment(_ context.Context, trackingNumber string, orderID uint) (Result, error) {
	c.calls.getShipment++
	if c.getShipmentFn == nil {
		return Result{Status: 404}, nil
	}
	return c.getShipmentFn(trackingNumber, orderID)
}

func (c *fakeClient) CreateShipment(_ context.Context, trackingNumber string, payload ShipmentTracking) (Result, error) {
	c.calls.createShipment++
	c.calls.created = append(c.calls.created, trackingNumber)
	if c.createShipmentFn == nil {
		return Result{Status: 201}, nil
	}
	return c.createShipmentFn(trackingNumber, payload)
}

func (c *fakeClient) CancelShipment(_ context.Context, trackingNumber string, payload CancelPayload) (Result, error) {
	c.calls.cancelShipment++
	c.calls.cancelled = append(c.calls.cancelled, trackingNumber)
	if c.cancelShipmentFn == nil {
		return Result{Status: 200}, nil
	}
	return c.cancelShipmentFn(trackingNumber, payload)
}

func (c *fakeClient) ListWebhooks(_ context.Context) (Result, error) {
	if c.listWebhooksFn == nil {
		return Result{Status: 200, Body: []byte(`[]`)}, nil
	}
	return c.listWebhooksFn()
}

func (c *fakeClient) CreateWebhook(_ context.Context, hook RemoteWebhook) (Result, error) {
	c.calls.createdWebhooks = append(c.calls.createdWebhooks, hook)
	return Result{Status: 201}, nil
}

func (c *fakeClient) UpdateWebhook(_ context.Context, hook RemoteWebhook) (Result, error) {
	c.calls.updatedWebhooks = append(c.calls.updatedWebhooks, hook)
	return Result{Status: 200}, nil
}

func newTestEngine(store *fakeStore, meta *fakeMeta, client *fakeClient, settings *fakeSettings, providers ...TrackingProvider) *Engine {
	return NewEngine(store, meta, client, settings, providers)
}
