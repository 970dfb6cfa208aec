/**
 * @description
 * This is the main entry point for the engagement-service. It is responsible
 * for initializing all components of the service: configuration, database
 * connection, supplier API client, message broker, rate limiter, the core
 * application service, the Telegram bot, the verification HTTP server, and
 * the order reconciliation sweep. It wires everything together and starts the
 * service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-telegram-bot-api/telegram-bot-api/v5: Telegram Bot API.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Optional .env loading.
 * - internal/api, internal/app, internal/bot, internal/config, internal/store:
 *   Internal packages for the service.
 * - pkg/supplierclient: Client for the supplier API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/exoboost/engagement-service/internal/api"
	"github.com/exoboost/engagement-service/internal/app"
	"github.com/exoboost/engagement-service/internal/bot"
	"github.com/exoboost/engagement-service/internal/config"
	"github.com/exoboost/engagement-service/internal/store"
	rmrabbit "github.com/exoboost/engagement-service/pkg/rabbitmq"
	"github.com/exoboost/engagement-service/pkg/supplierclient"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\".env file not found; using system environment\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"bot token must be configured\" env=BOT_TOKEN")
	}

	log.Printf("level=info component=bootstrap msg=\"starting engagement-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish order lifecycle events.
	// The broker is optional: a fallback no-op producer keeps the bot running
	// when RabbitMQ is not configured or unreachable.
	var producer rmrabbit.Publisher = &rmrabbit.EventProducerFallback{}
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		if eventProducer, prodErr := rmrabbit.NewEventProducer(cfg.RabbitMQURL); prodErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", prodErr)
		} else {
			producer = eventProducer
			defer eventProducer.Close()
			log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		}
	}

	// Initialize the supplier API client.
	supplier := supplierclient.NewClient(cfg.SupplierAPIBase, cfg.SupplierAPIKey)

	// Rate limiting: Redis-backed when configured, in-memory otherwise.
	var limiter app.RateLimiter = app.NewMemoryRateLimiter()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-memory rate limiting\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-memory rate limiting\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	service := app.NewService(repository, supplier, producer, cfg.ReferralBonusPoints, cfg.AdminIDs)

	// Initialize the Telegram bot.
	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"bot initialization failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"bot authorized\" username=%s", botAPI.Self.UserName)

	handler := bot.NewHandler(botAPI, service, limiter, cfg)

	// Set up the verification HTTP server.
	verifyHandlers := api.NewVerifyHandlers(service)
	router := api.VerifyRoutes(
		verifyHandlers,
		limiter,
		cfg.VerifyRateLimitPerWin,
		time.Duration(cfg.VerifyRateLimitWinMin)*time.Minute,
	)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"verification server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	// Start the order reconciliation sweep.
	reconciler := app.NewReconciler(service, cfg.OrderSweepIntervalMin)
	reconciler.Start()

	// Start consuming bot updates.
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.AllowedUpdates = []string{"message", "callback_query"}
	updates := botAPI.GetUpdatesChan(updateConfig)

	runCtx, cancelRun := context.WithCancel(context.Background())
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		handler.Run(runCtx, updates)
	}()
	log.Println("level=info component=bootstrap msg=\"bot update loop started\"")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=bootstrap msg=\"shutdown started\"")

	botAPI.StopReceivingUpdates()
	cancelRun()
	<-botDone

	<-reconciler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=bootstrap msg=\"shutdown complete\"")
}
