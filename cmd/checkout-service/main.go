package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/attempt"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment/paypal"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment/stripe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Options{Service: "checkout-service"}).Error("load config", "err", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Options{
		Service: "checkout-service",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fatal := func(msg string, err error) {
		logger.Error(msg, "err", err)
		os.Exit(1)
	}

	// --- DB ---
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		fatal("db connect", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			fatal("db migrate", err)
		}
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		fatal("redis ping", err)
	}

	// --- AMQP ---
	var publisher checkout.EventPublisher = events.Nop{}
	if cfg.EventsEnabled {
		conn, err := events.Dial(cfg.RabbitURL)
		if err != nil {
			fatal("rabbitmq connect", err)
		}
		defer conn.Close()

		pub, err := events.NewPublisher(conn, events.NewSequenceRepository(pool))
		if err != nil {
			fatal("rabbitmq publisher", err)
		}
		defer pub.Close()
		publisher = pub
	} else {
		logger.Info("event publishing disabled")
	}

	// --- Gateways ---
	card := stripe.New(stripe.Config{
		SecretKey: cfg.StripeSecretKey,
		Timeout:   cfg.GatewayTimeout,
	})

	walletCtx, walletCancel := context.WithTimeout(ctx, cfg.GatewayTimeout)
	wallet, err := paypal.New(walletCtx, paypal.Config{
		ClientID: cfg.PayPalClientID,
		Secret:   cfg.PayPalClientSecret,
		Mode:     cfg.PayPalMode,
		Timeout:  cfg.GatewayTimeout,
	})
	walletCancel()
	if err != nil {
		fatal("paypal client", err)
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Checkout ---
	svc := checkout.NewService(checkout.Deps{
		Carts:    cart.NewRepository(pool),
		Orders:   order.NewRepository(pool),
		Attempts: attempt.NewRedisStore(rdb),
		Card:     card,
		Wallet:   wallet,
		Events:   publisher,
		Logger:   logger,
		Metrics:  m,
	}, checkout.Options{
		Shipping:        cfg.Shipping,
		CardCurrency:    cfg.CardCurrency,
		MinorUnitScale:  cfg.CardMinorUnitScale,
		MinimumCharge:   cfg.CardMinimumCharge,
		CardReturnURL:   cfg.PublicBaseURL + "/payment-return",
		WalletCurrency:  cfg.WalletCurrency,
		WalletRate:      cfg.WalletConversionRate,
		AttemptTTL:      cfg.WalletAttemptTTL,
		WalletReturnURL: cfg.PublicBaseURL + "/paypalsuccess",
		WalletCancelURL: cfg.PublicBaseURL + "/cancel",
		GatewayTimeout:  cfg.GatewayTimeout,
	})

	// --- HTTP ---
	h := httpapi.NewCheckoutHandler(svc, httpapi.CookieConfig{
		Secure: cfg.CookieSecure,
		TTL:    cfg.WalletAttemptTTL,
	}, logger)
	r := httpapi.NewRouter(h, httpapi.RouterConfig{
		AllowedOrigins: cfg.CORSAllowOrigins,
		Metrics:        m,
	})

	addr := ":" + cfg.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}

	logger.Info("shutdown complete")
}
