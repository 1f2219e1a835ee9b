package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/ariefcatur/go-marketplace-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/paystack"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/sellers"
	"github.com/ariefcatur/go-marketplace-orders/internal/session"
	"github.com/ariefcatur/go-marketplace-orders/internal/settlement"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, postgres.Options{DSN: cfg.PostgresDSN, Migrate: cfg.Migrations})
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer, one writer for every order topic
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.ServiceName, 1024, log)
	prod.Start()

	retry := gateway.DefaultRetryConfig()
	retry.MaxAttempts = cfg.GatewayMaxAttempts
	retry.BaseDelay = cfg.GatewayBaseDelay
	retry.MaxDelay = cfg.GatewayMaxDelay
	gw := gateway.WithRetry(
		paystack.New(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.GatewayCallbackURL, cfg.GatewayTimeout),
		retry, log)

	store := &orders.PGStore{DB: db}
	products := &catalog.Repo{DB: db}
	cat := &catalog.Cached{Source: products, Redis: rdb}
	sessions := &session.Store{Redis: rdb, TTL: cfg.SessionTTL}
	status := &redisx.StatusCache{Redis: rdb}
	sellerSvc := &sellers.Service{Store: &sellers.Repo{DB: db}, Gateway: gw, Redis: rdb, Currency: cfg.Currency}
	serverCarts := &cart.PGServerStore{DB: db}
	carts := &cart.Service{
		Local:     &cart.RedisLocalStore{Redis: rdb},
		Server:    serverCarts,
		Authority: &cart.Authority{Catalog: cat, Store: serverCarts, Currency: cfg.Currency},
		Catalog:   cat,
	}
	query := &orders.Query{Store: store, Currency: cfg.Currency}

	router := httpx.NewRouter(log)
	(&httpx.SessionHandler{Sessions: sessions, OperatorKey: cfg.OperatorKey, Log: log}).Register(router)
	(&httpx.CartHandler{Catalog: products, Carts: carts, Sessions: sessions, Log: log}).Register(router)
	(&httpx.OrdersHandler{
		Checkout: &checkout.Service{
			Orders:      store,
			Carts:       carts,
			Catalog:     cat,
			Gateway:     gw,
			Idem:        &redisx.Idempotency{Redis: rdb},
			Status:      status,
			Publisher:   prod,
			Producer:    cfg.ServiceName,
			Currency:    cfg.Currency,
			CallbackURL: cfg.GatewayCallbackURL,
			Log:         log,
		},
		Query: query,
		Settlement: &settlement.Engine{
			Store:       store,
			Gateway:     gw,
			Sellers:     sellerSvc,
			Publisher:   prod,
			Producer:    cfg.ServiceName,
			FeeBps:      cfg.PlatformFeeBps,
			Concurrency: cfg.PayoutConcurrency,
			Log:         log,
		},
		Status:   status,
		Sessions: sessions,
		Log:      log,
	}).Register(router)
	(&httpx.SellerHandler{Query: query, Sellers: sellerSvc, Sessions: sessions, Log: log}).Register(router)

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // stop accepting, flush and close the writer
	prod.WaitClosed() // drain
}
