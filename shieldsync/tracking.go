package shieldsync

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/veltashop/shieldsync_backend/models"
)

// ErrNoActiveIntegration is returned when a tracking sync is requested but no
// tracking integration is enabled in settings.
var ErrNoActiveIntegration = errors.New("no active tracking integration")

// TrackingHandlers exposes the host-facing tracking hooks: the storefront
// calls tracking-sync when an order's tracking data changes, and the cancel
// hook when an order is cancelled or refunded and its shipments must be
// un-mirrored.
type TrackingHandlers struct {
	Engine *Engine
	Store  OrderSource
}

func NewTrackingHandlers(engine *Engine, store OrderSource) *TrackingHandlers {
	return &TrackingHandlers{Engine: engine, Store: store}
}

func (h *TrackingHandlers) orderFromParam(c *gin.Context) (*models.Order, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return nil, false
	}
	order, err := h.Store.GetOrder(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return nil, false
	}
	return order, true
}

func (h *TrackingHandlers) SyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, ok := h.orderFromParam(c)
		if !ok {
			return
		}
		if err := h.Engine.SyncTracking(c.Request.Context(), order.ID); err != nil {
			if errors.Is(err, ErrNoActiveIntegration) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *TrackingHandlers) CancelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, ok := h.orderFromParam(c)
		if !ok {
			return
		}
		if err := h.Engine.CancelShipments(c.Request.Context(), order); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
