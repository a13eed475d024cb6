package shieldsync

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/veltashop/shieldsync_backend/models"
)

// Attribute keys the engine owns on an order. Everything the sync state
// machines know about an order lives behind these keys.
const (
	MetaRemoteOrderID         = "_shieldapp_order_id"
	MetaCharge                = "_shieldapp_charge"
	MetaProtection            = "_shieldapp_protection"
	MetaTrackingNumber        = "shieldapp_shipment_tracking_number"
	MetaTrackingProvider      = "shieldapp_shipment_tracking_provider"
	MetaShipmentCronAPICalled = "shieldapp_shipment_cron_api_called"
	MetaShipmentAPICalled     = "shieldapp_shipment_api_called"
)

const (
	SeparatorPipe  = "|"
	SeparatorComma = ","
)

// FlagSuccess marks an order as already attempted by the shipment
// reconciler. Attempted, not delivered: a record whose create call failed is
// not retried once the flag is set.
const FlagSuccess = "success"

const remoteInsuredSelected = "insured_selected"

// Result is an HTTP-style outcome from the Shield API. Transport failures
// never produce a Result; they surface as an error from the client instead.
type Result struct {
	Status int
	Body   []byte
}

// RemoteOrder is the protection service's view of an order.
type RemoteOrder struct {
	ID            string      `json:"id"`
	OrderNumber   string      `json:"order_number"`
	InsuredStatus string      `json:"insured_status"`
	PaidToInsure  json.Number `json:"paid_to_insure"`
}

// Charge returns the premium the buyer paid, or "" when the order carries
// no protection.
func (r RemoteOrder) Charge() string {
	if r.InsuredStatus != remoteInsuredSelected {
		return ""
	}
	return strings.TrimSpace(r.PaidToInsure.String())
}

// ShipmentTracking is the canonical shipment record, independent of which
// tracking-data source produced it. Product ids carry one entry per unit.
type ShipmentTracking struct {
	SourceOrderID    uint   `json:"source_order_id"`
	SourceProductIDs []uint `json:"source_product_ids"`
	CourierID        string `json:"courier_id"`
	TrackingNumber   string `json:"tracking_number"`
}

// OrderPayload is the create-order request body.
type OrderPayload struct {
	SourceOrderID uint              `json:"source_order_id"`
	OrderNumber   string            `json:"order_number"`
	Currency      string            `json:"currency"`
	Amount        string            `json:"amount"`
	CustomerEmail string            `json:"customer_email"`
	Source        string            `json:"source"`
	LineItems     []OrderLinePayload `json:"line_items"`
}

type OrderLinePayload struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// CancelPayload carries the order/product context of a shipment cancel.
type CancelPayload struct {
	SourceOrderID    uint   `json:"source_order_id"`
	SourceProductIDs []uint `json:"source_product_ids"`
}

// RemoteWebhook is a webhook registration on the Shield side.
type RemoteWebhook struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
	URL   string `json:"url"`
}

// Client is the subset of the Shield API this service consumes.
type Client interface {
	GetOrder(ctx context.Context, orderID uint) (Result, error)
	CreateOrder(ctx context.Context, payload OrderPayload) (Result, error)
	GetShipment(ctx context.Context, trackingNumber string, orderID uint) (Result, error)
	CreateShipment(ctx context.Context, trackingNumber string, payload ShipmentTracking) (Result, error)
	CancelShipment(ctx context.Context, trackingNumber string, payload CancelPayload) (Result, error)
	ListWebhooks(ctx context.Context) (Result, error)
	CreateWebhook(ctx context.Context, webhook RemoteWebhook) (Result, error)
	UpdateWebhook(ctx context.Context, webhook RemoteWebhook) (Result, error)
}

// OrderSource abstracts the host order storage for selection and saves.
type OrderSource interface {
	GetOrder(ctx context.Context, id uint) (*models.Order, error)
	SelectOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error)
	CountOrders(ctx context.Context, f models.OrderFilter) (int64, error)
	SaveOrder(ctx context.Context, order *models.Order) error
	OrderNotes(ctx context.Context, orderID uint) ([]models.OrderNote, error)
}

// AttributeStore is the uniform get/set contract over the two order
// attribute storage shapes. Set applies every key of one logical update
// atomically.
type AttributeStore interface {
	Get(ctx context.Context, orderID uint, key string) (string, bool, error)
	Set(ctx context.Context, orderID uint, values map[string]string) error
	Delete(ctx context.Context, orderID uint, keys []string) error
}

// SettingsReader exposes the host options this core consumes.
type SettingsReader interface {
	Option(ctx context.Context, key string) (string, bool, error)
	OptionList(ctx context.Context, key string) ([]string, error)
	InstallDate(ctx context.Context) (time.Time, error)
}

// SplitTrackingNumbers parses the stored composite tracking value. Pipe is
// the preferred delimiter; comma is accepted for values written by older
// releases.
func SplitTrackingNumbers(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	sep := SeparatorPipe
	if !strings.Contains(raw, SeparatorPipe) && strings.Contains(raw, SeparatorComma) {
		sep = SeparatorComma
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinTrackingNumbers persists a set of tracking numbers in the pipe-joined
// canonical form.
func JoinTrackingNumbers(numbers []string) string {
	return strings.Join(numbers, SeparatorPipe)
}
