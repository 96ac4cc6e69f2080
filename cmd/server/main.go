package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/account"
	"github.com/iliyamo/homewatch/internal/authz"
	"github.com/iliyamo/homewatch/internal/cascade"
	"github.com/iliyamo/homewatch/internal/config"
	"github.com/iliyamo/homewatch/internal/database"
	"github.com/iliyamo/homewatch/internal/detection"
	"github.com/iliyamo/homewatch/internal/gateway"
	"github.com/iliyamo/homewatch/internal/handler"
	"github.com/iliyamo/homewatch/internal/live"
	"github.com/iliyamo/homewatch/internal/logger"
	"github.com/iliyamo/homewatch/internal/metrics"
	"github.com/iliyamo/homewatch/internal/notify"
	"github.com/iliyamo/homewatch/internal/queue"
	"github.com/iliyamo/homewatch/internal/repository"
	"github.com/iliyamo/homewatch/internal/router"
	"github.com/iliyamo/homewatch/internal/session"
	"github.com/iliyamo/homewatch/internal/topology"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat, "homewatch")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg, lg)
	if err != nil {
		lg.Fatal("store", zap.Error(err))
	}
	defer closeStore()

	rdb := config.NewRedisClient()
	if rdb == nil {
		lg.Warn("redis unavailable; rate limiting disabled, sessions on filesystem")
	} else {
		defer rdb.Close()
	}
	sessions := session.NewManager(rdb, session.Options{
		Secret: cfg.SessionSecret,
		Secure: cfg.Env == "prod",
	})

	guard := authz.NewGuard(store)

	// outbound gateways
	ctrl := gateway.NewDeviceControl(gateway.DeviceControlConfig{
		BaseURL: cfg.DeviceControlURL,
		Timeout: cfg.DeviceControlTimeout,
		Retries: cfg.DeviceControlRetries,
	}, lg)
	pusher := gateway.NewPush(cfg.PushURL, cfg.PushAccessToken, 10*time.Second, lg)
	verifier := gateway.NewGoogleVerifier(gateway.DefaultTokenInfoURL, cfg.GoogleClientID, 5*time.Second)

	// domain services
	accounts := account.New(store, guard, verifier, account.Options{
		BcryptCost:       cfg.BcryptCost,
		MaxAdherents:     cfg.MaxAdherents,
		MaxDevicesNormal: cfg.MaxDevicesNormal,
	}, lg)
	modes := detection.New(store, guard, ctrl, accounts, detection.Options{
		Concurrency: cfg.SyncConcurrency,
		CallTimeout: cfg.DeviceControlTimeout,
		SyncBudget:  cfg.SyncBudget,
		CameraTypes: cfg.CameraTypes,
	}, lg)
	cascades := cascade.New(store, guard, lg)
	topo := topology.New(store, guard, cfg.CameraTypes, lg)

	hub := live.NewHub(lg)
	go hub.Run(ctx)

	var publisher notify.Publisher
	if cfg.RabbitURL != "" {
		p := queue.NewPublisher(cfg.RabbitURL, lg)
		defer p.Close()
		publisher = p
	}
	dispatcher := notify.New(store, guard, pusher, hub, publisher, lg)

	// device event ingestion besides the HTTP route
	if cfg.RabbitURL != "" {
		h := queue.NewDeviceEventHandler(dispatcher, "amqp", lg)
		go queue.NewConsumer(cfg.RabbitURL, h, lg).Run(ctx)
	}
	if cfg.MQTTBroker != "" {
		sub := queue.NewMQTTSubscriber(queue.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: "homewatch-" + cfg.Env,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
		}, queue.NewDeviceEventHandler(dispatcher, "mqtt", lg), lg)
		if err := sub.Start(); err != nil {
			lg.Error("mqtt subscriber not started", zap.Error(err))
		} else {
			defer sub.Stop()
		}
	}

	e := router.New(router.Deps{
		Auth: &handler.AuthHandler{
			Accounts:  accounts,
			Sessions:  sessions,
			JWTSecret: cfg.JWTSecret,
			TokenTTL:  cfg.TokenTTL(),
			Log:       lg,
		},
		Account:       &handler.AccountHandler{Accounts: accounts, Log: lg},
		Topology:      &handler.TopologyHandler{Topology: topo, Sync: modes, Cascade: cascades, Log: lg},
		Notifications: &handler.NotificationHandler{Dispatcher: dispatcher, Log: lg},
		Live:          &handler.LiveHandler{Hub: hub, Log: lg},
		Sessions:      sessions,
		JWTSecret:     cfg.JWTSecret,
		DeviceKey:     cfg.DeviceKey,
		RateLimit:     config.LoadRateLimitConfig(),
		Redis:         rdb,
		Log:           lg,
	})

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.Store))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
}

// openStore returns the configured store and a function releasing it.
func openStore(cfg config.Config, lg *zap.Logger) (repository.Store, func(), error) {
	if cfg.Store == "memory" {
		lg.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(db, lg); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repository.NewSQLStore(db), func() { _ = db.Close() }, nil
}
