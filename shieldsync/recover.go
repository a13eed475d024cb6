package shieldsync

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/veltashop/shieldsync_backend/config"
	"github.com/veltashop/shieldsync_backend/models"
)

// The recover protocol is a two-phase, client-paced full resync over a date
// range. Initiate sizes the batches; the operator UI then polls
// process-batch with a growing offset, sleeping waitTime seconds between
// rounds, until "no more orders".

type InitiateRecoverRequest struct {
	DateFrom string `json:"dateFrom"`
	DateTo   string `json:"dateTo"`
}

type ProcessBatchRequest struct {
	DateFrom  string `json:"dateFrom"`
	DateTo    string `json:"dateTo"`
	BatchSize int    `json:"batchSize"`
	Offset    int    `json:"offset"`
	// Reconcile switches from "force-save every order" (which re-emits the
	// host's order.update webhook) to the read-only remote-id backfill.
	Reconcile bool `json:"reconcile"`
}

// DetermineBatchSize maps the total order count onto a batch size small
// enough to keep each round comfortably inside a request timeout.
func DetermineBatchSize(orderCount int64) int {
	switch {
	case orderCount <= 1000:
		return 100
	case orderCount <= 5000:
		return 50
	case orderCount <= 10000:
		return 25
	default:
		return 10
	}
}

// DetermineWaitTime returns the client-side pause, in seconds, between
// successive batches.
func DetermineWaitTime(batchSize int) int {
	switch batchSize {
	case 100:
		return 10
	case 50:
		return 5
	default:
		return 2
	}
}

// ParseRecoverRange parses the operator-supplied bounds. Date-only values
// widen the upper bound to the end of that day so both bounds stay
// inclusive.
func ParseRecoverRange(dateFrom string, dateTo string) (time.Time, time.Time, bool) {
	from, okFrom := parseRecoverDate(dateFrom, false)
	to, okTo := parseRecoverDate(dateTo, true)
	if !okFrom || !okTo || to.Before(from) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func parseRecoverDate(raw string, endOfDay bool) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RecoverHandlers exposes the two-phase protocol over HTTP.
type RecoverHandlers struct {
	Engine *Engine
	Store  OrderSource
}

func NewRecoverHandlers(engine *Engine, store OrderSource) *RecoverHandlers {
	return &RecoverHandlers{Engine: engine, Store: store}
}

func (h *RecoverHandlers) InitiateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InitiateRecoverRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.DateFrom == "" || req.DateTo == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dateFrom and dateTo are required"})
			return
		}
		from, to, ok := ParseRecoverRange(req.DateFrom, req.DateTo)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date range"})
			return
		}

		count, err := h.Store.CountOrders(c.Request.Context(), models.OrderFilter{
			CreatedFrom: &from,
			CreatedTo:   &to,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		batchSize := DetermineBatchSize(count)
		c.JSON(http.StatusOK, gin.H{
			"orderCount": count,
			"batchSize":  batchSize,
			"waitTime":   DetermineWaitTime(batchSize),
			"dateFrom":   req.DateFrom,
			"dateTo":     req.DateTo,
		})
	}
}

func (h *RecoverHandlers) ProcessBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProcessBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.DateFrom == "" || req.DateTo == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dateFrom and dateTo are required"})
			return
		}
		if req.BatchSize <= 0 || req.Offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch parameters"})
			return
		}
		from, to, ok := ParseRecoverRange(req.DateFrom, req.DateTo)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date range"})
			return
		}

		ctx := c.Request.Context()
		orders, err := h.Store.SelectOrders(ctx, models.OrderFilter{
			CreatedFrom: &from,
			CreatedTo:   &to,
			Limit:       req.BatchSize,
			Offset:      req.Offset,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(orders) == 0 {
			c.JSON(http.StatusOK, gin.H{"error": "no more orders"})
			return
		}

		logger := config.GetLogger()
		for i := range orders {
			var perr error
			if req.Reconcile {
				perr = h.Engine.ReconcileOrderReadOnly(ctx, &orders[i])
			} else {
				perr = h.Store.SaveOrder(ctx, &orders[i])
			}
			if perr != nil {
				config.LogError(logger, "shieldsync", "ProcessBatchHandler", "recover batch", map[string]interface{}{
					"orderId":   orders[i].ID,
					"reconcile": req.Reconcile,
				}, perr)
			}
		}

		c.JSON(http.StatusOK, gin.H{"processed": len(orders)})
	}
}
