package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/eaglebank/ledger-service/internal/command"
	"github.com/eaglebank/ledger-service/internal/config"
	"github.com/eaglebank/ledger-service/internal/handler"
	"github.com/eaglebank/ledger-service/internal/policy"
	"github.com/eaglebank/ledger-service/internal/projection"
	"github.com/eaglebank/ledger-service/internal/query"
	"github.com/eaglebank/ledger-service/internal/repository"
	"github.com/eaglebank/ledger-service/shared/cqrs"
	"github.com/eaglebank/ledger-service/shared/events"
	"github.com/eaglebank/ledger-service/shared/middleware"
	redisClient "github.com/eaglebank/ledger-service/shared/redis"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)
	log.Info("starting ledger service",
		slog.String("env", cfg.Env),
		slog.String("storage", cfg.Storage),
		slog.String("addr", cfg.HTTP.Addr()),
	)

	middleware.MustInitJWTSecret(cfg.JWT.Secret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Write store
	var store repository.LedgerStore
	switch cfg.Storage {
	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		db, err := openPostgres(cfg.Postgres)
		if err != nil {
			log.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()
		store = repository.NewPostgresStore(db)
	}

	// Redis read model + event stream
	var (
		balanceCache  command.BalanceCache
		publisher     command.EventPublisher
		balanceReader query.BalanceReader
	)
	if cfg.Redis.Disabled {
		log.Warn("redis disabled, balances are read from the write store")
	} else {
		redis, err := redisClient.NewClient(redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			log.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redis.Close()

		readRepo := repository.NewBalanceReadRepository(store, redis.Client, cfg.Cache.BalanceTTL, log)
		balanceCache = readRepo
		balanceReader = readRepo
		publisher = events.NewPublisher(redis.Client)

		projector := projection.NewBalanceProjector(readRepo, log)
		subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
			Group:    "balance-projector",
			Consumer: cfg.Redis.Consumer,
			Stream:   events.LedgerEventsStream,
			Handler:  projector.HandleLedgerEvent,
			Logger:   log,
		})
		go func() {
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("subscriber stopped", slog.Any("error", err))
			}
		}()
	}

	// --- CQRS wiring ---
	pol := policy.Default()
	ledgerCommands := command.NewLedgerCommandService(store, pol, balanceCache, publisher, log)
	userCommands := command.NewUserCommandService(store, balanceCache, publisher, log)
	ledgerQueries := query.NewLedgerQueryService(store, balanceReader, pol)
	authQueries := query.NewAuthQueryService(store, cfg.JWT.Secret, cfg.JWT.TokenTTL)

	if cfg.Admin.Email != "" {
		admin, err := userCommands.BootstrapAdmin(ctx, cqrs.RegisterUserCommand{
			Name:     cfg.Admin.Name,
			Email:    cfg.Admin.Email,
			Password: cfg.Admin.Password,
		})
		if err != nil {
			log.Error("failed to bootstrap admin", slog.Any("error", err))
			os.Exit(1)
		}
		log.Info("admin account ready", slog.String("user_id", admin.ID))
	}

	authHandler := handler.NewAuthHandler(authQueries)
	userHandler := handler.NewUserHandler(userCommands, ledgerQueries)
	ledgerHandler := handler.NewLedgerHandler(ledgerCommands, ledgerQueries)
	adminHandler := handler.NewAdminHandler(ledgerCommands, ledgerQueries)

	if cfg.Env != envLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := router.Group("/v1/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	router.POST("/v1/users", userHandler.RegisterUser)
	me := router.Group("/v1/users/me", middleware.AuthMiddleware())
	{
		me.GET("", userHandler.GetMe)
		me.PATCH("", userHandler.UpdateProfile)
		me.GET("/notifications", userHandler.ListNotifications)
		me.POST("/notifications/read", userHandler.MarkNotificationsRead)
	}

	ledger := router.Group("/v1/ledger", middleware.AuthMiddleware())
	{
		ledger.GET("/balance", ledgerHandler.GetBalance)
		ledger.POST("/deposits", ledgerHandler.Deposit)
		ledger.GET("/transactions", ledgerHandler.ListTransactions)
		ledger.GET("/investments", ledgerHandler.ListInvestments)
		ledger.POST("/investments", ledgerHandler.Invest)
		ledger.GET("/plans", ledgerHandler.ListPlans)
		ledger.GET("/loan/range", ledgerHandler.GetLoanRange)
		ledger.POST("/loan", ledgerHandler.ApplyForLoan)
		ledger.POST("/kyc", ledgerHandler.SubmitKYC)
	}

	admin := router.Group("/v1/admin", middleware.AuthMiddleware(), middleware.RequireAdmin())
	{
		admin.GET("/users/:userId", adminHandler.GetUser)
		admin.PUT("/users/:userId/balance", adminHandler.AdjustBalance)
		admin.PUT("/users/:userId/kyc", adminHandler.SetKYCStatus)
		admin.GET("/users/:userId/transactions", adminHandler.ListUserTransactions)
		admin.POST("/users/:userId/transactions", adminHandler.CreateTransaction)
		admin.GET("/transactions/:transactionId", adminHandler.GetTransaction)
		admin.PATCH("/transactions/:transactionId", adminHandler.UpdateTransaction)
		admin.DELETE("/transactions/:transactionId", adminHandler.DeleteTransaction)
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("got signal to shutdown server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("stopping server error", slog.Any("error", err))
	}
}

func openPostgres(cfg config.Postgres) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	slog.SetDefault(log)
	return log
}
