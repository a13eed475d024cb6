package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/veltashop/shieldsync_backend/config"
	"gorm.io/gorm"
)

// Order statuses mirror the host storefront lifecycle. The reconciliation
// workers only care about which sets an order belongs to, not the lifecycle
// itself.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusRefunded   = "refunded"
	OrderStatusCancelled  = "cancelled"
)

type Order struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	OrderNumber    string          `gorm:"size:64;index" json:"orderNumber"`
	Status         string          `gorm:"size:32;index" json:"status"`
	Currency       string          `gorm:"size:8" json:"currency"`
	ShippingMethod string          `gorm:"size:64" json:"shippingMethod"`
	Total          decimal.Decimal `gorm:"type:decimal(20,6)" json:"total"`
	CustomerEmail  string          `gorm:"size:255" json:"customerEmail"`
	MetaJSON       []byte          `gorm:"type:json" json:"-"`
	Items          []OrderItem     `gorm:"foreignKey:OrderId" json:"items"`
	CreatedAt      time.Time       `gorm:"index" json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type OrderItem struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	OrderId   uint `gorm:"index" json:"orderId"`
	ProductId uint `json:"productId"`
	Quantity  int  `json:"quantity"`
}

const OrderNoteTypeSystem = "system"

// OrderNote is a free-text annotation attached by the storefront or by
// fulfillment integrations. Note parsing providers read the system type.
type OrderNote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderId   uint      `gorm:"index" json:"orderId"`
	NoteType  string    `gorm:"size:32;index" json:"noteType"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func GetOrderById(ctx context.Context, id uint) (*Order, error) {
	db := config.GetDB().WithContext(ctx)
	var order Order
	if err := db.Preload("Items").Where("id = ?", id).Take(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// SaveOrder forces a full save of the order row. Model hooks and the host
// platform's update side effects (e.g. the order.update webhook emitter)
// fire even when no column changed, which is exactly what the recover
// default mode relies on.
func SaveOrder(ctx context.Context, order *Order) error {
	db := config.GetDB().WithContext(ctx)
	order.UpdatedAt = time.Now()
	return db.Omit("Items").Save(order).Error
}

// ProductUnitIDs expands line items into one product id per unit, since the
// protection service tracks coverage per unit rather than per line.
func (o *Order) ProductUnitIDs() []uint {
	var ids []uint
	for _, item := range o.Items {
		for i := 0; i < item.Quantity; i++ {
			ids = append(ids, item.ProductId)
		}
	}
	return ids
}

func GetOrderNotes(ctx context.Context, orderID uint, noteType string) ([]OrderNote, error) {
	db := config.GetDB().WithContext(ctx)
	var notes []OrderNote
	q := db.Where("order_id = ?", orderID)
	if noteType != "" {
		q = q.Where("note_type = ?", noteType)
	}
	if err := q.Order("created_at asc").Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}
