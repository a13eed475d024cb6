package models

import (
	"context"
	"time"

	"github.com/veltashop/shieldsync_backend/config"
	"gorm.io/gorm"
)

// OrderFilter is the uniform selection contract used by the reconciliation
// workers and the batch recover endpoints. Both creation-date bounds are
// inclusive; meta predicates are evaluated against whichever attribute
// storage shape is active.
type OrderFilter struct {
	Statuses     []string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	MetaNotExist []string
	MetaNotEmpty []string
	Limit        int
	Offset       int
}

func applyOrderFilter(db *gorm.DB, f OrderFilter) *gorm.DB {
	q := db.Model(&Order{})
	if len(f.Statuses) > 0 {
		q = q.Where("orders.status IN ?", f.Statuses)
	}
	// Both bounds must be applied. The WooCommerce-era implementation this
	// replaces collapsed the two bounds into one query key and silently
	// dropped the lower one on batch fetches.
	if f.CreatedFrom != nil {
		q = q.Where("orders.created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		q = q.Where("orders.created_at <= ?", *f.CreatedTo)
	}

	useTableMeta := config.UseOrderTableMeta()
	for _, key := range f.MetaNotExist {
		if useTableMeta {
			q = q.Where("JSON_EXTRACT(orders.meta_json, ?) IS NULL", "$.\""+key+"\"")
		} else {
			q = q.Where(
				"NOT EXISTS (SELECT 1 FROM order_meta om WHERE om.order_id = orders.id AND om.meta_key = ?)",
				key,
			)
		}
	}
	for _, key := range f.MetaNotEmpty {
		if useTableMeta {
			q = q.Where(
				"JSON_UNQUOTE(JSON_EXTRACT(orders.meta_json, ?)) IS NOT NULL AND JSON_UNQUOTE(JSON_EXTRACT(orders.meta_json, ?)) <> ''",
				"$.\""+key+"\"", "$.\""+key+"\"",
			)
		} else {
			q = q.Where(
				"EXISTS (SELECT 1 FROM order_meta om WHERE om.order_id = orders.id AND om.meta_key = ? AND om.meta_value <> '')",
				key,
			)
		}
	}
	return q
}

// SelectOrders returns order rows matching the filter, ordered by creation
// time so successive passes walk the set deterministically.
func SelectOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	db := config.GetDB().WithContext(ctx)
	q := applyOrderFilter(db, f).Order("orders.created_at asc, orders.id asc")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var orders []Order
	if err := q.Preload("Items").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func CountOrders(ctx context.Context, f OrderFilter) (int64, error) {
	db := config.GetDB().WithContext(ctx)
	var count int64
	if err := applyOrderFilter(db, f).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
