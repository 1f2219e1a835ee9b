package main

import (
	"context"
	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/paystack"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/sellers"
	"github.com/ariefcatur/go-marketplace-orders/internal/settlement"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"os/signal"
	"syscall"
	"time"
)

const sweepBatch = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	name := cfg.ServiceName + "-reconciler"
	log := logging.New(name, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB; the api owns migrations
	db, err := postgres.Connect(ctx, postgres.Options{DSN: cfg.PostgresDSN})
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, name, 256, log)
	prod.Start()

	retry := gateway.DefaultRetryConfig()
	retry.MaxAttempts = cfg.GatewayMaxAttempts
	retry.BaseDelay = cfg.GatewayBaseDelay
	retry.MaxDelay = cfg.GatewayMaxDelay
	gw := gateway.WithRetry(
		paystack.New(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.GatewayCallbackURL, cfg.GatewayTimeout),
		retry, log)

	store := &orders.PGStore{DB: db}
	engine := &settlement.Engine{
		Store:       store,
		Gateway:     gw,
		Sellers:     &sellers.Service{Store: &sellers.Repo{DB: db}, Gateway: gw, Redis: rdb, Currency: cfg.Currency},
		Publisher:   prod,
		Producer:    name,
		FeeBps:      cfg.PlatformFeeBps,
		Concurrency: cfg.PayoutConcurrency,
		Log:         log,
	}
	payments := &checkout.Service{
		Orders:    store,
		Gateway:   gw,
		Status:    &redisx.StatusCache{Redis: rdb},
		Publisher: prod,
		Producer:  name,
		Currency:  cfg.Currency,
		Log:       log,
	}
	rec := &settlement.Reconciler{
		Engine: engine,
		Dedup:  &redisx.Dedup{Redis: rdb, Service: name},
		Delay:  5 * time.Second,
		Log:    log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicSettlementIncomplete, cfg.ReconcilerWorkers, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("group", cfg.ReconcilerGroup).Str("topic", orders.TopicSettlementIncomplete).
			Int("workers", cfg.ReconcilerWorkers).Msg("consumer started")
		return cons.Start(gctx, rec.HandleSettlementIncomplete)
	})
	g.Go(func() error {
		tick := time.NewTicker(cfg.ReconcileInterval)
		defer tick.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-tick.C:
				sweep(gctx, log, engine, payments, cfg.PaymentTTL)
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("reconciler exit")
	}
	log.Info().Msg("shutting down")
	prod.Close()
	prod.WaitClosed()
}

// sweep settles lingering transient payouts and expires abandoned payments.
func sweep(ctx context.Context, log zerolog.Logger, engine *settlement.Engine, payments *checkout.Service, ttl time.Duration) {
	if n, err := engine.Sweep(ctx, sweepBatch); err != nil {
		log.Error().Err(err).Msg("settlement sweep")
	} else if n > 0 {
		log.Info().Int("settled", n).Msg("settlement sweep")
	}
	if n, err := payments.ExpireStalePayments(ctx, ttl, sweepBatch); err != nil {
		log.Error().Err(err).Msg("expire payments")
	} else if n > 0 {
		log.Info().Int("expired", n).Msg("expire payments")
	}
}
