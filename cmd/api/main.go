package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/concert-booking/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/concert-booking/internal/adapters/mongo"
	"github.com/robertarktes/concert-booking/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/concert-booking/internal/adapters/redis"
	"github.com/robertarktes/concert-booking/internal/booking"
	"github.com/robertarktes/concert-booking/internal/config"
	"github.com/robertarktes/concert-booking/internal/events"
	httphandler "github.com/robertarktes/concert-booking/internal/http"
	"github.com/robertarktes/concert-booking/internal/identity"
	"github.com/robertarktes/concert-booking/internal/idempotency"
	"github.com/robertarktes/concert-booking/internal/observability"
	"github.com/robertarktes/concert-booking/internal/rateLimit"
	"github.com/robertarktes/concert-booking/internal/subscription"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "concert-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel).WithField("instance", cfg.InstanceID)

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	if cfg.Migrate {
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		logger.Info("migrations applied")
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDB)
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	cache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(cache)
	ids := identity.NewService(repo, cache, cfg.SessionTTL)

	registry := subscription.NewRegistry()
	dispatcher := subscription.NewDispatcher(repo, registry, logger)
	coord := booking.NewCoordinator(repo, catalog, dispatcher, logger,
		booking.WithOutbox(crdb.NewBookingOutbox(repo, cfg.InstanceID)),
		booking.WithAuditor(audit),
	)
	subs := subscription.NewService(catalog, registry, cfg.SubscriptionTimeout)

	handlers := httphandler.NewHandlers(cfg, catalog, coord, subs, ids, idemp, map[string]httphandler.Pinger{
		"crdb":  repo,
		"mongo": catalog,
		"redis": cache,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httphandler.SetupRouter(handlers, logger, rl, cfg.RateLimitPerMinute),
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Long polls have no timeout of their own by default; end them so Shutdown can drain.
	srv.RegisterOnShutdown(subs.Close)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})

	if cfg.RabbitURL != "" {
		rabbitConn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer rabbitConn.Close()
		consumer, err := rabbit.NewConsumer(rabbitConn, events.BookingCreatedKey)
		if err != nil {
			log.Fatalf("failed to create consumer: %v", err)
		}
		deliveries, err := consumer.Consume(gctx)
		if err != nil {
			log.Fatalf("failed to consume: %v", err)
		}
		listener := events.NewListener(cfg.InstanceID, dispatcher, logger)
		g.Go(func() error { return listener.Run(gctx, deliveries) })
	} else {
		logger.Warn("RABBIT_URL not set, bookings on other instances will not notify local subscribers")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
		return
	}
	logger.Info("Server exiting")
}
