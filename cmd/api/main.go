package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/williamsbolu/natours/internal/bootstrap"
	"github.com/williamsbolu/natours/internal/http/router"
	"github.com/williamsbolu/natours/internal/platform/credentials"
	"github.com/williamsbolu/natours/internal/platform/mailer"
	"github.com/williamsbolu/natours/internal/platform/payments"
	"github.com/williamsbolu/natours/internal/service"
	"github.com/williamsbolu/natours/pkg/auth"
	"github.com/williamsbolu/natours/pkg/config"
	"github.com/williamsbolu/natours/pkg/database"
	"github.com/williamsbolu/natours/pkg/events"
	"github.com/williamsbolu/natours/pkg/logger"
	"github.com/williamsbolu/natours/pkg/metrics"
	mw "github.com/williamsbolu/natours/pkg/middleware"
)

func main() {
	cfg := config.Load()
	logger.SetDefault(logger.New(os.Stdout, os.Getenv("LOG_LEVEL")))
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, storeCheck, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer stores.Close(context.Background())

	checks := map[string]mw.Check{"database": storeCheck}

	rdb := database.ConnectRedis(ctx, cfg.Redis)
	if rdb == nil {
		logger.Warn("Redis unavailable, rate limiting disabled", "url", cfg.Redis.URL)
	} else {
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var bus events.EventBus = events.NewLocalBus()
	if cfg.NATS.Enabled {
		nb, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Warn("NATS unavailable, using in-process bus", "url", cfg.NATS.URL, "error", err)
		} else {
			bus = nb
		}
	}
	defer bus.Close()

	m := metrics.NewMetrics("natours")
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hasher := credentials.NewPasswordHasher(cfg.Auth.PasswordHasher, cfg.Auth.BcryptCost)
	mail := mailer.FromConfig(cfg.Email)
	stripe := payments.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.Currency)

	ratings := service.NewRatingAggregator(stores.Reviews, stores.Tours, bus, m, service.RatingConfig{MaxRetries: 3})
	handler := router.New(router.Deps{
		Config: cfg,
		Gate:   service.NewGate(stores.Users, tokens, m),
		Auth: service.NewAuthService(stores.Users, hasher, tokens, mail, bus, m, service.AuthConfig{
			BaseURL:  cfg.BaseURL,
			ResetTTL: cfg.Auth.PasswordResetTTL,
		}),
		Users:    service.NewUserService(stores.Users),
		Reviews:  service.NewReviewService(stores.Reviews, stores.Tours, ratings, bus),
		Bookings: service.NewBookingService(stores.Bookings, stores.Tours, stores.Users, stripe, bus, cfg.BaseURL),
		Metrics:  m,
		Redis:    rdb,
		Health:   checks,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Subscribe before serving so requests deferred by early traffic are queued.
	recomputeSub, err := ratings.Listen()
	if err != nil {
		logger.Error("Failed to start ratings worker", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting natours API", "port", cfg.Server.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return ratings.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down natours API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if derr := recomputeSub.Drain(); derr != nil {
			logger.Warn("Failed to drain recompute subscription", "error", derr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
