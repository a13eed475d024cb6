package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/veltashop/shieldsync_backend/config"
	"github.com/veltashop/shieldsync_backend/models"
	"github.com/veltashop/shieldsync_backend/shieldsync"
	"github.com/veltashop/shieldsync_backend/utils"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("SHIELD_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")

	r.Use(cors.New(corsConfig))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	client, err := shieldsync.NewClient()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "shield client"}).Fatal(err)
	}

	store := shieldsync.NewOrderSource()
	meta := shieldsync.NewAttributeStore()
	settings := shieldsync.NewSettingsReader()
	providers := []shieldsync.TrackingProvider{
		shieldsync.NewNotesTrackingProvider(store, meta, client, settings),
		shieldsync.NewFieldTrackingProvider(store, meta, client, settings),
	}
	engine := shieldsync.NewEngine(store, meta, client, settings, providers)
	webhooks := shieldsync.NewWebhookReconciler(client, settings)
	workers := shieldsync.NewWorkers(engine, store, settings, webhooks)
	recoverHandlers := shieldsync.NewRecoverHandlers(engine, store)
	trackingHandlers := shieldsync.NewTrackingHandlers(engine, store)

	// Operator-driven batch recovery (client-paced, resumable).
	r.POST("/api/recover/initiate", recoverHandlers.InitiateHandler())
	r.POST("/api/recover/batch", recoverHandlers.ProcessBatchHandler())

	// Host-facing tracking hooks: called by the storefront when an order's
	// tracking data changes, or when a cancelled order's shipments must be
	// un-mirrored.
	r.POST("/api/orders/:id/tracking-sync", trackingHandlers.SyncHandler())
	r.POST("/api/orders/:id/shipments/cancel", trackingHandlers.CancelHandler())

	// Manual worker triggers for operations.
	r.POST("/api/workers/:name/run", func(c *gin.Context) {
		name := c.Param("name")
		ctx := utils.SetTriggerSourceInContext(c.Request.Context(), "manual")
		if err := workers.Run(ctx, name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	// Asynchronous trigger: publish the job and let the push subscription
	// deliver it back to /pubsub/worker-run.
	r.POST("/api/workers/:name/publish", func(c *gin.Context) {
		if err := shieldsync.PublishWorkerRun(c.Request.Context(), c.Param("name")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"success": true})
	})

	// Pub/Sub push endpoint for scheduler-published worker runs.
	r.POST("/pubsub/worker-run", shieldsync.WorkerPushHandler(workers))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	if config.EnvBoolDefault("ENABLE_INPROCESS_SCHEDULER", true) {
		go runScheduler(sigCtx, workers, logger)
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

// runScheduler drives the three periodic workers on their nominal
// intervals. Overlap with a Pub/Sub-triggered or manual pass is safe: every
// mutation is idempotent and keyed per order.
func runScheduler(ctx context.Context, workers *shieldsync.Workers, logger *logrus.Logger) {
	ctx = utils.SetTriggerSourceInContext(ctx, "scheduler")
	jobs := []struct {
		name     string
		interval time.Duration
	}{
		{shieldsync.WorkerMissingOrders, shieldsync.MissingOrdersInterval},
		{shieldsync.WorkerMissingShipments, shieldsync.MissingShipmentsInterval},
		{shieldsync.WorkerWebhookValidator, shieldsync.WebhookValidatorInterval},
	}

	for _, job := range jobs {
		go func(name string, interval time.Duration) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := workers.Run(ctx, name); err != nil {
						logger.WithFields(logrus.Fields{"worker": name}).Error(err)
					}
				}
			}
		}(job.name, job.interval)
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
