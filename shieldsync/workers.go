package shieldsync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/veltashop/shieldsync_backend/config"
	"github.com/veltashop/shieldsync_backend/models"
	"github.com/veltashop/shieldsync_backend/utils"
)

// Worker names double as scheduler entry points and Pub/Sub job names.
const (
	WorkerMissingOrders    = "missing-orders"
	WorkerMissingShipments = "missing-shipments"
	WorkerWebhookValidator = "webhook-validator"
)

// Nominal scheduling intervals. The scheduler in cmd drives these; a pass
// is also safe to trigger manually or via Pub/Sub at any time because all
// mutation is idempotent per order.
const (
	MissingOrdersInterval    = 24 * time.Hour
	MissingShipmentsInterval = 5 * time.Hour
	WebhookValidatorInterval = 5 * time.Hour
)

var defaultAcceptedStatuses = []string{models.OrderStatusProcessing, models.OrderStatusCompleted}
var defaultCancelStatuses = []string{models.OrderStatusCancelled, models.OrderStatusRefunded}

// Workers owns the three periodic reconciliation passes.
type Workers struct {
	Engine   *Engine
	Store    OrderSource
	Settings SettingsReader
	Webhooks *WebhookReconciler
	Logger   *logrus.Logger
}

func NewWorkers(engine *Engine, store OrderSource, settings SettingsReader, webhooks *WebhookReconciler) *Workers {
	return &Workers{
		Engine:   engine,
		Store:    store,
		Settings: settings,
		Webhooks: webhooks,
		Logger:   config.GetLogger(),
	}
}

// Run dispatches one worker pass by name and records a heartbeat.
func (w *Workers) Run(ctx context.Context, name string) error {
	source, _ := utils.GetTriggerSourceFromContext(ctx)
	w.Logger.WithFields(logrus.Fields{"worker": name, "trigger": source}).Info("worker pass")

	var err error
	switch name {
	case WorkerMissingOrders:
		err = w.runMissingOrders(ctx)
	case WorkerMissingShipments:
		err = w.runMissingShipments(ctx)
	case WorkerWebhookValidator:
		err = w.runWebhookValidator(ctx)
	default:
		return fmt.Errorf("unknown worker %q", name)
	}

	_ = config.SetRedisValue("shieldsync:worker:"+name+":last_run", time.Now().UTC().Format(time.RFC3339), 0)
	return err
}

func (w *Workers) acceptedStatuses(ctx context.Context) []string {
	statuses, err := w.Settings.OptionList(ctx, models.SettingKeyIncludedOrderStatuses)
	if err != nil || len(statuses) == 0 {
		return defaultAcceptedStatuses
	}
	return statuses
}

func (w *Workers) cancelStatuses(ctx context.Context) []string {
	statuses, err := w.Settings.OptionList(ctx, models.SettingKeyCancelOrderStatuses)
	if err != nil || len(statuses) == 0 {
		return defaultCancelStatuses
	}
	return statuses
}

func (w *Workers) installDateFilter(ctx context.Context) *time.Time {
	installed, err := w.Settings.InstallDate(ctx)
	if err != nil || installed.IsZero() {
		return nil
	}
	return &installed
}

// runMissingOrders selects orders the integration has never linked and
// drives the order-sync state machine over each. A failure on one order
// never aborts the pass.
func (w *Workers) runMissingOrders(ctx context.Context) error {
	orders, err := w.Store.SelectOrders(ctx, models.OrderFilter{
		Statuses:     w.acceptedStatuses(ctx),
		CreatedFrom:  w.installDateFilter(ctx),
		MetaNotExist: []string{MetaRemoteOrderID},
	})
	if err != nil {
		return err
	}

	for i := range orders {
		if rerr := w.Engine.ReconcileOrder(ctx, &orders[i]); rerr != nil {
			config.LogError(w.Logger, "shieldsync", "runMissingOrders", "order reconcile", map[string]interface{}{
				"orderId": orders[i].ID,
			}, rerr)
		}
	}
	return nil
}

// runMissingShipments selects orders that carry tracking data but were
// never attempted by the shipment reconciler.
func (w *Workers) runMissingShipments(ctx context.Context) error {
	statuses := append(w.acceptedStatuses(ctx), w.cancelStatuses(ctx)...)
	orders, err := w.Store.SelectOrders(ctx, models.OrderFilter{
		Statuses:     statuses,
		CreatedFrom:  w.installDateFilter(ctx),
		MetaNotEmpty: []string{MetaTrackingNumber},
		MetaNotExist: []string{MetaShipmentCronAPICalled},
	})
	if err != nil {
		return err
	}

	for i := range orders {
		// A failure aborts only this order; the completion flag stays unset
		// so the next pass retries it.
		if rerr := w.Engine.ReconcileShipments(ctx, &orders[i]); rerr != nil {
			config.LogError(w.Logger, "shieldsync", "runMissingShipments", "shipment reconcile", map[string]interface{}{
				"orderId": orders[i].ID,
			}, rerr)
		}
	}
	return nil
}

func (w *Workers) runWebhookValidator(ctx context.Context) error {
	return w.Webhooks.Upsert(ctx)
}
