package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/health"
)

// RouterConfig — зависимости REST-поверхности.
// Inventory и Orders опциональны: каждый сервис поднимает свой срез API.
type RouterConfig struct {
	Inventory *InventoryHandler
	Orders    *OrderHandler
	Health    *health.Handler
	Logger    *log.Entry
}

// NewRouter собирает gin-router со всеми маршрутами сервиса.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Logger != nil {
		router.Use(requestLogger(cfg.Logger))
	}

	if cfg.Health != nil {
		router.GET("/health", gin.WrapH(cfg.Health))
		router.GET("/health/live", gin.WrapF(health.LivenessHandler))
		router.GET("/health/ready", gin.WrapF(cfg.Health.ReadinessHandler))
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	if cfg.Inventory != nil {
		inv := api.Group("/inventory")
		inv.POST("", cfg.Inventory.CreateItem)
		inv.GET("/low-stock", cfg.Inventory.ListLowStock)
		inv.GET("/needing-restock", cfg.Inventory.ListNeedingRestock)
		inv.POST("/check-availability", cfg.Inventory.CheckAvailability)
		inv.POST("/update", cfg.Inventory.UpdateInventory)
		inv.GET("/:sku", cfg.Inventory.GetStatus)
		inv.GET("/:sku/level", cfg.Inventory.GetStockLevel)
		inv.POST("/:sku/adjust", cfg.Inventory.AdjustStock)
		inv.POST("/:sku/reserve", cfg.Inventory.Reserve)
		inv.POST("/:sku/release", cfg.Inventory.Release)
		inv.POST("/:sku/consume", cfg.Inventory.Consume)
		inv.POST("/:sku/restock", cfg.Inventory.Restock)
		inv.POST("/:sku/deactivate", cfg.Inventory.Deactivate)
	}

	if cfg.Orders != nil {
		orders := api.Group("/orders")
		orders.POST("", cfg.Orders.CreateOrder)
		orders.GET("/number/:orderNumber", cfg.Orders.GetOrderByNumber)
		orders.GET("/customer/:customerId", cfg.Orders.ListCustomerOrders)
		orders.GET("/:id", cfg.Orders.GetOrder)
		orders.PUT("/:id/status", cfg.Orders.UpdateStatus)
		orders.POST("/:id/cancel", cfg.Orders.CancelOrder)
	}

	return router
}

// requestLogger пишет access-лог завершённых запросов.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		})
		if c.Writer.Status() >= 500 {
			entry.Error("request failed")
			return
		}
		entry.Debug("request completed")
	}
}
