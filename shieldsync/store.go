package shieldsync

import (
	"context"
	"time"

	"github.com/veltashop/shieldsync_backend/config"
	"github.com/veltashop/shieldsync_backend/models"
)

// dbOrderSource backs OrderSource with the GORM order tables.
type dbOrderSource struct{}

func NewOrderSource() OrderSource {
	return dbOrderSource{}
}

func (dbOrderSource) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	return models.GetOrderById(ctx, id)
}

func (dbOrderSource) SelectOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	return models.SelectOrders(ctx, f)
}

func (dbOrderSource) CountOrders(ctx context.Context, f models.OrderFilter) (int64, error) {
	return models.CountOrders(ctx, f)
}

func (dbOrderSource) SaveOrder(ctx context.Context, order *models.Order) error {
	return models.SaveOrder(ctx, order)
}

func (dbOrderSource) OrderNotes(ctx context.Context, orderID uint) ([]models.OrderNote, error) {
	return models.GetOrderNotes(ctx, orderID, models.OrderNoteTypeSystem)
}

// metaTableStore keeps attributes in the legacy order_meta key-value table.
type metaTableStore struct{}

// orderTableStore keeps attributes in orders.meta_json with
// read-modify-save semantics.
type orderTableStore struct{}

// NewAttributeStore picks the storage shape once, at startup, from the
// feature-detection flag. Callers never branch on shape themselves.
func NewAttributeStore() AttributeStore {
	if config.UseOrderTableMeta() {
		return orderTableStore{}
	}
	return metaTableStore{}
}

func (metaTableStore) Get(ctx context.Context, orderID uint, key string) (string, bool, error) {
	return models.GetOrderMetaValue(ctx, orderID, key)
}

func (metaTableStore) Set(ctx context.Context, orderID uint, values map[string]string) error {
	return models.SetOrderMetaValues(ctx, orderID, values)
}

func (metaTableStore) Delete(ctx context.Context, orderID uint, keys []string) error {
	return models.DeleteOrderMetaKeys(ctx, orderID, keys)
}

func (orderTableStore) Get(ctx context.Context, orderID uint, key string) (string, bool, error) {
	return models.GetOrderTableMetaValue(ctx, orderID, key)
}

func (orderTableStore) Set(ctx context.Context, orderID uint, values map[string]string) error {
	return models.SetOrderTableMetaValues(ctx, orderID, values)
}

func (orderTableStore) Delete(ctx context.Context, orderID uint, keys []string) error {
	return models.DeleteOrderTableMetaKeys(ctx, orderID, keys)
}

// dbSettings reads host options through the models settings cache.
type dbSettings struct{}

func NewSettingsReader() SettingsReader {
	return dbSettings{}
}

func (dbSettings) Option(ctx context.Context, key string) (string, bool, error) {
	return models.GetOption(ctx, key)
}

func (dbSettings) OptionList(ctx context.Context, key string) ([]string, error) {
	return models.GetOptionList(ctx, key)
}

func (dbSettings) InstallDate(ctx context.Context) (time.Time, error) {
	return models.GetInstallDate(ctx)
}
