// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tainment-service/internal/cache"
	"tainment-service/internal/config"
	"tainment-service/internal/db"
	"tainment-service/internal/domain/account"
	"tainment-service/internal/domain/notification"
	"tainment-service/internal/domain/payment"
	"tainment-service/internal/domain/subscription"
	"tainment-service/internal/events"
	adminHandler "tainment-service/internal/handlers/admin"
	notifyHandler "tainment-service/internal/handlers/notification"
	paymentHandler "tainment-service/internal/handlers/payment"
	subscriptionHandler "tainment-service/internal/handlers/subscription"
	wsHandler "tainment-service/internal/handlers/websocket"
	"tainment-service/internal/metrics"
	"tainment-service/internal/middleware"
	"tainment-service/internal/pkg/jwt"
	"tainment-service/internal/pkg/lock"
	"tainment-service/internal/pkg/ratelimit"
	"tainment-service/internal/repository/memory"
	"tainment-service/internal/repository/postgres"
	redisrepo "tainment-service/internal/repository/redis"
	notifyUsecase "tainment-service/internal/service/notification"
	paymentUsecase "tainment-service/internal/service/payment"
	"tainment-service/internal/service/scanner"
	subscriptionUsecase "tainment-service/internal/service/subscription"
	"tainment-service/internal/websocket"
	wsHandlers "tainment-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Infra is the set of backing stores the services run on.
type Infra struct {
	Subscriptions subscription.Store
	Accounts      account.Repository
	Ledger        payment.Ledger
	Notifications notification.Repository
	Sessions      payment.SessionStore
	Locks         lock.Locker
	Gateway       payment.Gateway
	// Optional
	Limiter    paymentUsecase.CheckoutLimiter
	APILimiter middleware.APILimiter
	Bus        notification.Notifier
}

// MemoryInfra runs everything in process. Used by STORE_DRIVER=memory and tests.
func MemoryInfra(cfg config.AppConfig, logger *zap.Logger) *Infra {
	return &Infra{
		Subscriptions: memory.NewSubscriptionStore(),
		Accounts:      memory.NewAccountRepository(),
		Ledger:        memory.NewLedger(),
		Notifications: memory.NewNotificationRepository(),
		Sessions:      memory.NewSessionStore(cfg.Payment.CheckoutTimeout),
		Locks:         lock.NewLocalLocker(),
		Gateway:       paymentUsecase.NewMockGateway(cfg.Payment.MockSuccessRate, cfg.Payment.MockVerifyRate, cfg.Payment.MockSeed, logger),
	}
}

type Server struct {
	cfg     config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	hub     *websocket.Hub
	scanner *scanner.Scanner
	closers []func()
}

// NewServer connects the configured backends and wires the service.
func NewServer(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*Server, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	infra := MemoryInfra(cfg, logger)

	// ----- PostgreSQL -----
	if cfg.StoreDriver == config.StorePostgres {
		pool, err := db.ConnectDB(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)

		if err := db.Migrate(ctx, pool, logger); err != nil {
			closeAll()
			return nil, err
		}

		dbWrapper := postgres.NewDB(pool)
		infra.Subscriptions = postgres.NewSubscriptionStore(dbWrapper)
		infra.Accounts = postgres.NewAccountRepository(dbWrapper)
		infra.Ledger = postgres.NewPaymentRepository(dbWrapper)
		infra.Notifications = postgres.NewNotificationRepository(dbWrapper)
	} else {
		logger.Warn("running on the in-memory store; state is lost on restart")
	}

	// ----- Redis -----
	if cfg.Redis.Enabled() {
		redisClient, err := db.NewRedis(ctx, cfg.Redis)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		logger.Info("connected to redis", zap.Strings("addresses", cfg.Redis.Addresses))

		infra.Sessions = redisrepo.NewCheckoutStore(redisClient)
		infra.Locks = lock.NewRedisLocker(redisClient, "tainment:lock:", logger)
		limiter := ratelimit.NewRateLimiter(redisClient, cfg.Payment.CheckoutRateLimit, cfg.Payment.CheckoutRateWindow)
		infra.Limiter = limiter
		infra.APILimiter = limiter
	} else {
		logger.Warn("redis not configured; checkout sessions and sweep locks are process-local")
	}

	// ----- NATS -----
	if cfg.NATSURL != "" {
		publisher, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, publisher.Close)
		infra.Bus = publisher
	}

	// ----- JWT -----
	jwtManager, err := jwt.LoadAndBuild(cfg.JWT)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to load JWT keys: %w", err)
	}

	s := Assemble(cfg, logger, infra, jwtManager.Verifier)
	s.closers = closers
	return s, nil
}

// Assemble builds services, handlers and routes on top of infra.
func Assemble(cfg config.AppConfig, logger *zap.Logger, infra *Infra, verifier *jwt.Verifier) *Server {
	collector := metrics.New()

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(verifier, logger)

	// ----- Notifications -----
	inbox := notifyUsecase.NewInboxService(infra.Notifications, hub, logger)
	hub.RegisterHandler(wsHandlers.NewNotificationHandler(inbox))

	sinks := []notifyUsecase.Sink{
		{Name: "inbox", Notifier: inbox, Required: true},
		{Name: "push", Notifier: notifyUsecase.NewPushSink(hub)},
		{Name: "log", Notifier: notifyUsecase.NewLogSink(logger)},
	}
	if infra.Bus != nil {
		sinks = append(sinks, notifyUsecase.Sink{Name: "bus", Notifier: infra.Bus, Required: true})
	}
	notifier := notifyUsecase.NewFanout(logger, sinks...)

	// ----- Services (Usecases) -----
	subscriptionService := subscriptionUsecase.NewSubscriptionService(
		infra.Subscriptions,
		infra.Accounts,
		notifier,
		logger,
		subscriptionUsecase.WithCache(cache.NewSubscriptionCache(cfg.CacheTTL)),
		subscriptionUsecase.WithMetrics(collector),
		subscriptionUsecase.WithMaxAttempts(cfg.TransitionMaxAttempts),
	)

	paymentOpts := []paymentUsecase.Option{paymentUsecase.WithMetrics(collector)}
	if infra.Limiter != nil {
		paymentOpts = append(paymentOpts, paymentUsecase.WithLimiter(infra.Limiter))
	}
	paymentService := paymentUsecase.NewPaymentService(
		subscriptionService,
		infra.Ledger,
		infra.Sessions,
		infra.Gateway,
		infra.Locks,
		paymentUsecase.Config{
			CheckoutTimeout: cfg.Payment.CheckoutTimeout,
			Currency:        cfg.Payment.Currency,
			PaymentMethod:   cfg.Payment.Method,
		},
		logger,
		paymentOpts...,
	)

	sweeper := scanner.NewScanner(
		infra.Subscriptions,
		subscriptionService,
		notifier,
		infra.Locks,
		collector,
		scanner.Config{
			NoticeInterval: cfg.Scanner.NoticeInterval,
			ExpiryInterval: cfg.Scanner.ExpiryInterval,
			ReminderWindow: cfg.Scanner.ReminderWindow,
			LockTTL:        cfg.Scanner.LockTTL,
		},
		logger,
	)

	// ----- Router -----
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.RequestLogger(logger, collector),
		middleware.CORS(),
	)

	var rateLimit gin.HandlerFunc
	if infra.APILimiter != nil {
		rateLimit = middleware.RateLimit(infra.APILimiter, cfg.APIRateLimit, cfg.APIRateWindow, logger)
	}

	SetupRouter(engine, logger, &Handlers{
		SubscriptionHandler: subscriptionHandler.NewSubscriptionHandler(subscriptionService),
		PaymentHandler:      paymentHandler.NewPaymentHandler(paymentService),
		AdminHandler:        adminHandler.NewAdminHandler(subscriptionService, sweeper),
		NotifHandler:        notifyHandler.NewNotificationHandler(inbox),
		WSHandler:           wsHandler.NewWebSocketHandler(hub, cfg.WSAllowedOrigins, logger),
		AuthMiddleware:      middleware.NewAuthMiddleware(verifier),
		RateLimit:           rateLimit,
		Metrics:             collector.Handler(),
	})

	return &Server{
		cfg:     cfg,
		engine:  engine,
		logger:  logger,
		hub:     hub,
		scanner: sweeper,
	}
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves HTTP and runs the hub and the scanner until ctx is cancelled
// or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})

	if s.cfg.Scanner.Enabled {
		g.Go(func() error {
			return s.scanner.Run(gctx)
		})
	}

	return g.Wait()
}

// Close releases backend connections in reverse order of opening.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
