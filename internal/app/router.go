package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dispatch/internal/handler"
	"dispatch/internal/middleware"
	"dispatch/internal/relay"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	CourierHandler *handler.CourierHandler
	OrderHandler   *handler.OrderHandler
	Hub            *relay.Hub
	Authenticator  *relay.Authenticator
	Actions        relay.Actions
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	Logger         *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Prometheus metrics.
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Live relay. Auth happens inside the handler, before the upgrade.
	router.GET("/ws", relay.ServeWS(deps.Hub, deps.Authenticator, deps.Actions, deps.Logger))

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Courier routes, all behind courier token auth.
		couriers := v1.Group("/couriers")
		couriers.Use(middleware.CourierAuthMiddleware(deps.Authenticator))
		{
			couriers.POST("/location", deps.CourierHandler.UpdateLocation)
			couriers.POST("/availability", deps.CourierHandler.SetAvailability)
			couriers.GET("/offers", deps.CourierHandler.ListOffers)
			couriers.POST("/offers/:orderId/accept", deps.CourierHandler.AcceptOffer)
			couriers.POST("/offers/:orderId/reject", deps.CourierHandler.RejectOffer)
			couriers.GET("/delivery", deps.CourierHandler.CurrentDelivery)
			couriers.POST("/delivery/status", deps.CourierHandler.AdvanceDelivery)
			couriers.GET("/earnings", deps.CourierHandler.Earnings)
		}

		// Order routes.
		orders := v1.Group("/orders")
		{
			orders.GET("/:orderId/status", deps.OrderHandler.Status)
		}
	}

	return router
}
