package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/nanorem/backend/internal/config"
	"github.com/nanorem/backend/internal/database"
	"github.com/nanorem/backend/internal/database/migrations"
	"github.com/nanorem/backend/internal/jobs"
	"github.com/nanorem/backend/internal/queue"
	"github.com/nanorem/backend/internal/routes"
	"github.com/nanorem/backend/internal/services/catalog"
	"github.com/nanorem/backend/internal/services/ledger"
	"github.com/nanorem/backend/internal/services/network"
	"github.com/nanorem/backend/internal/services/notify"
	"github.com/nanorem/backend/internal/services/order"
	"github.com/nanorem/backend/internal/services/rules"
	"github.com/nanorem/backend/internal/services/subscription"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := migrations.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid Redis URL: %v", err)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	redisClient := redis.NewClient(redisOpts)

	ctx := context.Background()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	jobQueue := queue.NewQueue(db)
	outbox := queue.NewOutbox(redisClient)

	// Services
	networkSvc := network.NewNetworkService(db)
	ruleSvc := rules.NewRuleService(db)
	ledgerSvc := ledger.NewLedgerService(db)
	orderSvc := order.NewOrderService(db, networkSvc, ruleSvc, ledgerSvc, jobQueue)
	catalogSvc := catalog.NewCatalogService(db, cfg.Vendor)
	subscriptionSvc := subscription.NewSubscriptionService(db)

	telegramClient := notify.NewTelegramClient(cfg.Telegram.BotToken)
	notifySvc := notify.NewNotifyService(outbox, telegramClient)

	// Background processing
	jobs.RegisterAllJobHandlers(jobQueue, db, notifySvc, catalogSvc)
	jobQueue.ProcessJobs()

	notifyCtx, cancelNotify := context.WithCancel(ctx)
	go notifySvc.Run(notifyCtx)

	scheduler := jobs.StartScheduler(cfg, db, jobQueue, subscriptionSvc, notifySvc)

	// HTTP API
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	routes.RegisterRoutes(router, cfg, db, jobQueue, networkSvc, ruleSvc, ledgerSvc, orderSvc, catalogSvc, subscriptionSvc)

	srv := startServer(router, cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	scheduler.Stop()
	jobQueue.Stop()
	cancelNotify()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, port string) *http.Server {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", port)
	return srv
}
