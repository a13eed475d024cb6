package shieldsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/veltashop/shieldsync_backend/config"
	"github.com/veltashop/shieldsync_backend/models"
)

// Engine runs the order-sync and shipment-sync state machines. All order
// state lives in attributes behind the AttributeStore, so every operation
// is idempotent per order and safe to re-run on the next scheduled pass.
type Engine struct {
	Store     OrderSource
	Meta      AttributeStore
	Client    Client
	Settings  SettingsReader
	Providers []TrackingProvider
	Logger    *logrus.Logger
}

func NewEngine(store OrderSource, meta AttributeStore, client Client, settings SettingsReader, providers []TrackingProvider) *Engine {
	return &Engine{
		Store:     store,
		Meta:      meta,
		Client:    client,
		Settings:  settings,
		Providers: providers,
		Logger:    config.GetLogger(),
	}
}

// IsLinked reports whether the order already has a remote identity.
func (e *Engine) IsLinked(ctx context.Context, orderID uint) (bool, error) {
	v, ok, err := e.Meta.Get(ctx, orderID, MetaRemoteOrderID)
	if err != nil {
		return false, err
	}
	return ok && v != "", nil
}

// ReconcileOrder drives one order through UNLINKED -> LINKED.
//
// Remote statuses outside {200, 404} and transport failures leave the order
// untouched for the next pass. Once linked, create is never re-issued.
func (e *Engine) ReconcileOrder(ctx context.Context, order *models.Order) error {
	linked, err := e.IsLinked(ctx, order.ID)
	if err != nil {
		return err
	}
	if linked {
		return nil
	}

	res, terr := e.Client.GetOrder(ctx, order.ID)
	if terr != nil {
		// Transport error: retry on the next scheduled pass.
		return nil
	}
	if res.Status != 200 && res.Status != 404 {
		return nil
	}

	if res.Status == 200 {
		var remote RemoteOrder
		if uerr := json.Unmarshal(res.Body, &remote); uerr != nil || remote.ID == "" {
			return nil
		}
		return e.persistRemoteOrder(ctx, order.ID, remote)
	}

	// Not found remotely: create it, unless the shipping method is out of
	// coverage (re-evaluated every pass, the exclusion list can change).
	allowed, err := e.shippingMethodAllowed(ctx, order)
	if err != nil {
		return err
	}
	if !allowed {
		return nil
	}

	payload := e.buildOrderPayload(order)
	createRes, terr := e.Client.CreateOrder(ctx, payload)
	if terr != nil {
		return nil
	}

	var remote RemoteOrder
	_ = json.Unmarshal(createRes.Body, &remote)

	switch {
	case createRes.Status > 201 && createRes.Status < 409:
		config.LogError(e.Logger, "shieldsync", "ReconcileOrder", "orders", map[string]interface{}{
			"params":   payload,
			"method":   "POST",
			"endpoint": "orders",
		}, fmt.Errorf("shield api error while posting order data, status %d", createRes.Status))
		return nil
	case createRes.Status == 409 || (remote.ID != "" && remote.OrderNumber != ""):
		if remote.ID == "" {
			// Conflict without the record body: the order exists remotely,
			// fetch it so the attributes can still be persisted.
			followUp, ferr := e.Client.GetOrder(ctx, order.ID)
			if ferr != nil || followUp.Status != 200 {
				return nil
			}
			if uerr := json.Unmarshal(followUp.Body, &remote); uerr != nil || remote.ID == "" {
				return nil
			}
		}
		return e.persistRemoteOrder(ctx, order.ID, remote)
	default:
		config.LogError(e.Logger, "shieldsync", "ReconcileOrder", "orders", map[string]interface{}{
			"params":   payload,
			"method":   "POST",
			"endpoint": "orders",
			"status":   createRes.Status,
		}, fmt.Errorf("unexpected create order response shape"))
		return nil
	}
}

// ReconcileOrderReadOnly copies remote identity and charge attributes for an
// order that already exists on the Shield side, never issuing a create.
// Used by the recover protocol's reconcile mode.
func (e *Engine) ReconcileOrderReadOnly(ctx context.Context, order *models.Order) error {
	linked, err := e.IsLinked(ctx, order.ID)
	if err != nil || linked {
		return err
	}
	res, terr := e.Client.GetOrder(ctx, order.ID)
	if terr != nil || res.Status != 200 {
		return nil
	}
	var remote RemoteOrder
	if uerr := json.Unmarshal(res.Body, &remote); uerr != nil || remote.ID == "" {
		return nil
	}
	return e.persistRemoteOrder(ctx, order.ID, remote)
}

// persistRemoteOrder writes remote id, charge and protection flag as one
// logical update.
func (e *Engine) persistRemoteOrder(ctx context.Context, orderID uint, remote RemoteOrder) error {
	charge := remote.Charge()
	protection := "0"
	if charge != "" {
		protection = "1"
	}
	return e.Meta.Set(ctx, orderID, map[string]string{
		MetaRemoteOrderID: remote.ID,
		MetaCharge:        charge,
		MetaProtection:    protection,
	})
}

func (e *Engine) shippingMethodAllowed(ctx context.Context, order *models.Order) (bool, error) {
	excluded, err := e.Settings.OptionList(ctx, models.SettingKeyExcludedShippingMethods)
	if err != nil {
		return false, err
	}
	for _, method := range excluded {
		if method == order.ShippingMethod {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) buildOrderPayload(order *models.Order) OrderPayload {
	lines := make([]OrderLinePayload, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, OrderLinePayload{ProductID: item.ProductId, Quantity: item.Quantity})
	}
	return OrderPayload{
		SourceOrderID: order.ID,
		OrderNumber:   order.OrderNumber,
		Currency:      order.Currency,
		Amount:        order.Total.String(),
		CustomerEmail: order.CustomerEmail,
		Source:        "veltashop",
		LineItems:     lines,
	}
}

// ReconcileShipments mirrors every canonical shipment record of one order to
// the Shield side, then marks the order attempted. Records already present
// remotely are skipped; 201 and 409 on create both count as mirrored.
func (e *Engine) ReconcileShipments(ctx context.Context, order *models.Order) error {
	flag, _, err := e.Meta.Get(ctx, order.ID, MetaShipmentCronAPICalled)
	if err != nil {
		return err
	}
	if flag == FlagSuccess {
		return nil
	}
	linked, err := e.IsLinked(ctx, order.ID)
	if err != nil {
		return err
	}
	if !linked {
		return nil
	}

	records, err := e.ShipmentRecords(ctx, order)
	if err != nil {
		return err
	}

	var seen []string
	for _, record := range records {
		seen = append(seen, record.TrackingNumber)

		res, terr := e.Client.GetShipment(ctx, record.TrackingNumber, order.ID)
		if terr != nil || res.Status == 200 {
			// Transport error or already mirrored: leave this record alone.
			continue
		}
		e.resendShipment(ctx, record)
	}

	if len(seen) > 0 {
		if err := e.Meta.Set(ctx, order.ID, map[string]string{
			MetaTrackingNumber: JoinTrackingNumbers(seen),
		}); err != nil {
			return err
		}
	}

	return e.Meta.Set(ctx, order.ID, map[string]string{
		MetaShipmentCronAPICalled: FlagSuccess,
	})
}

// resendShipment posts one shipment record; 201/409 are success, anything
// else is logged and dropped (the completion flag makes this
// at-least-attempted, not at-least-delivered).
func (e *Engine) resendShipment(ctx context.Context, record ShipmentTracking) bool {
	res, terr := e.Client.CreateShipment(ctx, record.TrackingNumber, record)
	if terr != nil {
		config.LogError(e.Logger, "shieldsync", "resendShipment", "shipments", map[string]interface{}{
			"params":   record,
			"method":   "POST",
			"endpoint": "shipments",
		}, terr)
		return false
	}
	return res.Status == 201 || res.Status == 409
}

// ShipmentRecords builds the canonical record list for one order: stored
// attributes first, falling back to the active tracking provider when
// nothing was persisted yet.
func (e *Engine) ShipmentRecords(ctx context.Context, order *models.Order) ([]ShipmentTracking, error) {
	stored, _, err := e.Meta.Get(ctx, order.ID, MetaTrackingNumber)
	if err != nil {
		return nil, err
	}

	numbers := SplitTrackingNumbers(stored)
	productIDs := order.ProductUnitIDs()

	var records []ShipmentTracking
	if len(numbers) > 0 {
		resolution, err := e.resolveCouriers(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		for _, number := range numbers {
			records = append(records, ShipmentTracking{
				SourceOrderID:    order.ID,
				SourceProductIDs: productIDs,
				CourierID:        resolution.For(number),
				TrackingNumber:   number,
			})
		}
	}

	if len(records) == 0 {
		provider := e.ActiveProvider(ctx)
		if provider == nil {
			return nil, nil
		}
		return provider.ShippingInfo(ctx, order.ID)
	}
	return records, nil
}

func (e *Engine) resolveCouriers(ctx context.Context, orderID uint) (CourierResolution, error) {
	provider := e.ActiveProvider(ctx)
	if provider == nil {
		// No integration active; fall back to the stored provider attribute.
		courier, _, err := e.Meta.Get(ctx, orderID, MetaTrackingProvider)
		if err != nil {
			return CourierResolution{}, err
		}
		return CourierResolution{Single: courier}, nil
	}
	return provider.ShippingProviderName(ctx, orderID)
}

// ActiveProvider returns the first enabled tracking integration. Only one
// is expected active at a time.
func (e *Engine) ActiveProvider(ctx context.Context) TrackingProvider {
	for _, p := range e.Providers {
		if p.IsActive(ctx) {
			return p
		}
	}
	return nil
}

// SyncTracking runs the active integration's reconcile pass for one order:
// diff the current tracking data against the mirrored set, cancel stale
// numbers, create new ones.
func (e *Engine) SyncTracking(ctx context.Context, orderID uint) error {
	provider := e.ActiveProvider(ctx)
	if provider == nil {
		return ErrNoActiveIntegration
	}
	return provider.Reconcile(ctx, orderID)
}

// CancelTracking un-mirrors a superseded or removed tracking number. A 400
// response or a transport failure reports failure; the caller does not
// retry automatically.
func (e *Engine) CancelTracking(ctx context.Context, orderID uint, trackingNumber string, productIDs []uint) bool {
	return cancelTracking(ctx, e.Client, e.Logger, orderID, trackingNumber, productIDs)
}

// CancelShipments un-mirrors every stored tracking number of one order and
// clears the tracking attributes, so a later pass can mirror again from
// scratch if tracking data reappears.
func (e *Engine) CancelShipments(ctx context.Context, order *models.Order) error {
	stored, _, err := e.Meta.Get(ctx, order.ID, MetaTrackingNumber)
	if err != nil {
		return err
	}
	numbers := SplitTrackingNumbers(stored)
	if len(numbers) == 0 {
		return nil
	}

	productIDs := order.ProductUnitIDs()
	for _, number := range numbers {
		e.CancelTracking(ctx, order.ID, number, productIDs)
	}

	return e.Meta.Delete(ctx, order.ID, []string{
		MetaTrackingNumber,
		MetaTrackingProvider,
		MetaShipmentCronAPICalled,
		MetaShipmentAPICalled,
	})
}

func cancelTracking(ctx context.Context, client Client, logger *logrus.Logger, orderID uint, trackingNumber string, productIDs []uint) bool {
	if trackingNumber == "" {
		return false
	}
	res, terr := client.GetShipment(ctx, trackingNumber, orderID)
	if terr != nil || res.Status != 200 {
		return false
	}
	cancelRes, terr := client.CancelShipment(ctx, trackingNumber, CancelPayload{
		SourceOrderID:    orderID,
		SourceProductIDs: productIDs,
	})
	if terr != nil {
		config.LogError(logger, "shieldsync", "cancelTracking", "shipments", map[string]interface{}{
			"orderId":        orderID,
			"trackingNumber": trackingNumber,
			"method":         "POST",
			"endpoint":       "shipments/cancel",
		}, terr)
		return false
	}
	return cancelRes.Status != 400
}
