package models

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/veltashop/shieldsync_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderMeta is the legacy key-value attribute store, one row per
// (order, key). The newer storage shape keeps the same attributes inside
// orders.meta_json and saves the whole order row.
type OrderMeta struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	OrderId   uint   `gorm:"index:idx_order_meta_key,unique" json:"orderId"`
	MetaKey   string `gorm:"size:128;index:idx_order_meta_key,unique" json:"metaKey"`
	MetaValue string `gorm:"type:text" json:"metaValue"`
}

func GetOrderMetaValue(ctx context.Context, orderID uint, key string) (string, bool, error) {
	db := config.GetDB().WithContext(ctx)
	var meta OrderMeta
	err := db.Where("order_id = ? AND meta_key = ?", orderID, key).Take(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return meta.MetaValue, true, nil
}

// SetOrderMetaValues upserts several meta rows in one transaction so a
// logical update lands atomically.
func SetOrderMetaValues(ctx context.Context, orderID uint, values map[string]string) error {
	db := config.GetDB().WithContext(ctx)
	return db.Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			row := OrderMeta{OrderId: orderID, MetaKey: key, MetaValue: value}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "order_id"}, {Name: "meta_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"meta_value"}),
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func DeleteOrderMetaKeys(ctx context.Context, orderID uint, keys []string) error {
	db := config.GetDB().WithContext(ctx)
	return db.Where("order_id = ? AND meta_key IN ?", orderID, keys).
		Delete(&OrderMeta{}).Error
}

// Order-table meta helpers (new storage shape).

func decodeOrderMetaJSON(raw []byte) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return map[string]string{}
	}
	return m
}

func GetOrderTableMetaValue(ctx context.Context, orderID uint, key string) (string, bool, error) {
	order, err := GetOrderById(ctx, orderID)
	if err != nil || order == nil {
		return "", false, err
	}
	m := decodeOrderMetaJSON(order.MetaJSON)
	v, ok := m[key]
	return v, ok, nil
}

// SetOrderTableMetaValues applies a read-modify-save of orders.meta_json.
// A single save carries every attribute of the logical update.
func SetOrderTableMetaValues(ctx context.Context, orderID uint, values map[string]string) error {
	db := config.GetDB().WithContext(ctx)
	return db.Transaction(func(tx *gorm.DB) error {
		var order Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", orderID).Take(&order).Error; err != nil {
			return err
		}
		m := decodeOrderMetaJSON(order.MetaJSON)
		for key, value := range values {
			m[key] = value
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Model(&order).Update("meta_json", raw).Error
	})
}

func DeleteOrderTableMetaKeys(ctx context.Context, orderID uint, keys []string) error {
	db := config.GetDB().WithContext(ctx)
	return db.Transaction(func(tx *gorm.DB) error {
		var order Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", orderID).Take(&order).Error; err != nil {
			return err
		}
		m := decodeOrderMetaJSON(order.MetaJSON)
		for _, key := range keys {
			delete(m, key)
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Model(&order).Update("meta_json", raw).Error
	})
}
