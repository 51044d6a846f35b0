package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nanorem/backend/internal/config"
	"github.com/nanorem/backend/internal/handlers"
	"github.com/nanorem/backend/internal/middleware"
	"github.com/nanorem/backend/internal/queue"
	"github.com/nanorem/backend/internal/services/catalog"
	"github.com/nanorem/backend/internal/services/ledger"
	"github.com/nanorem/backend/internal/services/network"
	"github.com/nanorem/backend/internal/services/order"
	"github.com/nanorem/backend/internal/services/rules"
	"github.com/nanorem/backend/internal/services/subscription"
)

// RegisterRoutes configures all API routes
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	jobQueue *queue.Queue,
	networkSvc *network.NetworkService,
	ruleSvc *rules.RuleService,
	ledgerSvc *ledger.LedgerService,
	orderSvc *order.OrderService,
	catalogSvc *catalog.CatalogService,
	subscriptionSvc *subscription.SubscriptionService,
) {
	router.Use(cors.Default())

	// 60 requests per second per IP, 10 auth attempts per minute
	rateLimiter := middleware.NewRateLimiter(60, 10, 20, 3)
	router.Use(rateLimiter.IPRateLimiterMiddleware())

	authHandler := handlers.NewAuthHandler(db)
	partnerHandler := handlers.NewPartnerHandler(db, networkSvc, subscriptionSvc, jobQueue)
	networkHandler := handlers.NewNetworkHandler(networkSvc)
	orderHandler := handlers.NewOrderHandler(orderSvc)
	ledgerHandler := handlers.NewLedgerHandler(db, ledgerSvc)
	productHandler := handlers.NewProductHandler(catalogSvc, jobQueue)
	rulesHandler := handlers.NewRulesHandler(ruleSvc)
	webhookHandler := handlers.NewWebhookHandler(cfg.Webhook.Secret, networkSvc, orderSvc, catalogSvc)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := router.Group("/api/auth")
	authGroup.Use(rateLimiter.AuthRateLimiterMiddleware())
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// Webhook endpoint authenticates with an HMAC signature, not a JWT
	router.POST("/api/webhooks/shop", webhookHandler.HandleShopEvent)

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware())
	{
		partners := api.Group("/partners")
		{
			partners.POST("", partnerHandler.Register)
			partners.GET("/:id", partnerHandler.Get)
			partners.GET("/by-telegram/:telegram_id", partnerHandler.GetByTelegramID)
			partners.PUT("/:id/sponsor", partnerHandler.Reparent)
			partners.POST("/:id/suspend", partnerHandler.Suspend)
			partners.POST("/:id/reactivate", partnerHandler.Reactivate)
			partners.POST("/:id/terminate", partnerHandler.Terminate)
			partners.POST("/:id/subscription", partnerHandler.ActivateSubscription)

			partners.GET("/:id/tree", networkHandler.Tree)
			partners.GET("/:id/downline", networkHandler.Downline)
			partners.GET("/:id/level/:level", networkHandler.Level)
			partners.GET("/:id/ancestors", networkHandler.Ancestors)

			partners.GET("/:id/balance", ledgerHandler.Balance)
			partners.GET("/:id/ledger", ledgerHandler.Summary)
			partners.GET("/:id/orders", orderHandler.ListByBuyer)
		}

		orders := api.Group("/orders")
		{
			orders.POST("", orderHandler.Create)
			orders.GET("/:id", orderHandler.Get)
			orders.POST("/:id/confirm", orderHandler.Confirm)
			orders.POST("/:id/cancel", orderHandler.Cancel)
			orders.GET("/:id/entries", ledgerHandler.OrderEntries)
		}

		ledgerGroup := api.Group("/ledger")
		{
			ledgerGroup.POST("/mark-paid", ledgerHandler.MarkPaid)
		}

		products := api.Group("/products")
		{
			products.GET("", productHandler.List)
			products.GET("/:slug", productHandler.GetBySlug)
			products.POST("/sync", productHandler.TriggerSync)
		}

		rulesGroup := api.Group("/rules")
		{
			rulesGroup.GET("/active", rulesHandler.Active)
			rulesGroup.POST("", rulesHandler.Publish)
		}
	}
}
