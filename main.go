package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ms-storefront/internal/analytics"
	analytics_api "ms-storefront/internal/analytics/api"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/cart"
	"ms-storefront/internal/cart/cart_api"
	"ms-storefront/internal/catalog"
	"ms-storefront/internal/catalog/catalog_api"
	"ms-storefront/internal/checkout"
	"ms-storefront/internal/checkout/checkout_api"
	"ms-storefront/internal/config"
	"ms-storefront/internal/database/migrations"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	orderdb "ms-storefront/internal/order/db"
	"ms-storefront/internal/order/order_api"
	lock "ms-storefront/internal/order/redis"
	"ms-storefront/internal/payment/services"
	"ms-storefront/internal/promo"
	"ms-storefront/internal/receipt"
	"ms-storefront/internal/sse"
	"ms-storefront/internal/users"
	"ms-storefront/internal/users/users_api"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))

	if cfg.Kafka.Enabled {
		kctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		topics, err := kafka.ListTopics(kctx, cfg.Kafka.Brokers)
		if err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Kafka not reachable yet: %v", err))
		} else {
			log.Info("KAFKA", fmt.Sprintf("✅ Kafka reachable, %d topics", len(topics)))
		}
	}

	return bunDB, redisClient
}

// requestLogger reports every request through the API log category
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), time.Since(start).String())
		})
	}
}

// sessionRoutes mounts the routes that read or issue the cart session cookie
func sessionRoutes(r chi.Router, cookieName string, mounts ...func(chi.Router)) {
	r.Group(func(r chi.Router) {
		r.Use(cart.SessionMiddleware(cookieName))
		for _, mount := range mounts {
			mount(r)
		}
	})
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting storefront initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("APP", "Verifying connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB.DB, cfg.Database.MigrationsDir, log)
		if err := runner.Up(); err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("Auto migration failed: %v", err))
		}
		runner.Close()
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	denylist := auth.NewDenylist(redisClient)
	verifier, err := auth.NewVerifier(ctx, cfg.Auth, issuer, denylist)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}
	requireAuth := auth.Middleware(verifier, log)

	stripeService, err := services.NewStripeService(cfg.Stripe, log)
	if err != nil {
		log.Fatal("STRIPE", err.Error())
	}

	pricing := cart.Pricing{TaxRate: cfg.Cart.TaxRate, ShippingFee: cfg.Cart.ShippingFee}
	cartStore := cart.NewStore(redisClient, cfg.Redis.CartTTL, pricing)
	catalogDB := &catalog.DB{Bun: bunDB}
	ledger := &orderdb.DB{Bun: bunDB}
	userDB := &users.DB{Bun: bunDB}
	userService := users.NewService(userDB, issuer, log)
	userService.Revoker = denylist
	promoService := promo.NewService(&promo.DB{Bun: bunDB}, log)
	emitter := sse.NewCheckoutEventEmitter()

	deps := checkout.Deps{
		Ledger:    ledger,
		Catalog:   catalogDB,
		Gateway:   stripeService,
		Locker:    lock.NewRedis(redisClient, cfg.Redis.LockTTL, log),
		Addresses: userService,
		Carts:     cartStore,
	}

	var producer *kafka.Producer
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.OrderEvents, cfg.Kafka.AccountEvents}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka, log)
		deps.Publisher = producer
		userService.Notifier = producer

		// the consumer fans order events out to SSE clients of every instance
		consumer = kafka.NewConsumer(cfg.Kafka, log)
		go consumer.Start(ctx, emitter.EmitOrderEvent)
	} else {
		log.Warn("KAFKA", "Kafka disabled, order events only reach local SSE clients and account emails are not sent")
		deps.Emitter = emitter
	}

	checkoutService := checkout.NewService(deps, log)
	checkoutService.Currency = cfg.Stripe.Currency

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature", cart.SessionHeader},
		ExposedHeaders:   []string{cart.SessionHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	checkoutHandler := &checkout_api.Handler{
		Checkout: checkoutService,
		Carts:    cartStore,
		Promos:   promoService,
		Orders:   ledger,
		Events:   emitter,
		Logger:   log,
	}
	checkoutHandler.RegisterWebhook(r)
	users_api.NewHandler(userService, log).RegisterRoutes(r, requireAuth)

	sessionRoutes(r, cfg.Redis.SessionName,
		catalog_api.NewHandler(catalog.NewService(catalogDB, log), log).RegisterRoutes,
		cart_api.NewHandler(cartStore, catalogDB, log).RegisterRoutes,
		func(r chi.Router) { checkoutHandler.RegisterRoutes(r, requireAuth) },
	)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		order_api.NewHandler(ledger, receipt.NewGenerator(ledger, userDB, log), emitter, log).RegisterRoutes(r)
		analytics_api.NewHandler(analytics.NewService(analytics.NewDB(bunDB), log), log).RegisterRoutes(r)
	})
	log.Info("ROUTER", "Catalog, cart, user, checkout, order and analytics routes registered")

	// no write timeout, SSE streams stay open
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Storefront running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close consumer: %v", err))
		}
	}
	log.Info("HTTP", "✅ Storefront shutdown complete")
}
