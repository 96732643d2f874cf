package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/stampcard-backend/api/routes"
	"github.com/angelmondragon/stampcard-backend/internal/auth"
	"github.com/angelmondragon/stampcard-backend/internal/loyalty"
	"github.com/angelmondragon/stampcard-backend/internal/stats"
	"github.com/angelmondragon/stampcard-backend/internal/users"
	"github.com/angelmondragon/stampcard-backend/pkg/auth/session"
	"github.com/angelmondragon/stampcard-backend/pkg/config"
	"github.com/angelmondragon/stampcard-backend/pkg/db"
	"github.com/angelmondragon/stampcard-backend/pkg/env"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
	"github.com/angelmondragon/stampcard-backend/pkg/metrics"
	"github.com/angelmondragon/stampcard-backend/pkg/migrate"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox"
	"github.com/angelmondragon/stampcard-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	loyaltyMetrics := metrics.NewLoyaltyMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	services, err := buildServices(cfg, logg, dbClient, sessionManager, loyaltyMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, sessionManager, registry, httpMetrics, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, sessions *session.Manager, loyaltyMetrics *metrics.LoyaltyMetrics) (routes.Services, error) {
	conn := dbClient.DB()
	settings := loyalty.SettingsFromConfig(cfg.Loyalty)
	loyaltyRepo := loyalty.NewRepository(conn)
	userRepo := users.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	ledger, err := loyalty.NewLedger(loyalty.LedgerParams{
		DB:       dbClient,
		Repo:     loyaltyRepo,
		Outbox:   emitter,
		Metrics:  loyaltyMetrics,
		Logger:   logg,
		Settings: settings,
	})
	if err != nil {
		return routes.Services{}, err
	}
	redemption, err := loyalty.NewRedemption(loyalty.RedemptionParams{
		DB:       dbClient,
		Repo:     loyaltyRepo,
		Outbox:   emitter,
		Metrics:  loyaltyMetrics,
		Logger:   logg,
		Settings: settings,
	})
	if err != nil {
		return routes.Services{}, err
	}
	issuer, err := loyalty.NewIssuer(loyalty.IssuerParams{
		DB:       dbClient,
		Repo:     loyaltyRepo,
		Outbox:   emitter,
		Metrics:  loyaltyMetrics,
		Logger:   logg,
		Settings: settings,
	})
	if err != nil {
		return routes.Services{}, err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		DB:             dbClient,
		Users:          userRepo,
		Profiles:       loyaltyRepo,
		SessionManager: sessions,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		MasterCodes:    cfg.Loyalty.MasterCodes,
		Logger:         logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	userService, err := users.NewService(users.ServiceParams{
		Repo:      userRepo,
		Profiles:  ledger,
		MaxStamps: settings.MaxStamps,
	})
	if err != nil {
		return routes.Services{}, err
	}

	statsService, err := stats.NewService(stats.NewRepository(conn), settings.Location, nil)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Auth:       authService,
		Users:      userService,
		Ledger:     ledger,
		Redemption: redemption,
		Issuer:     issuer,
		Stats:      statsService,
	}, nil
}
