package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tripslot/internal/config"
	"github.com/kirinyoku/tripslot/internal/consumer"
	"github.com/kirinyoku/tripslot/internal/metrics"
	"github.com/kirinyoku/tripslot/internal/mq"
	"github.com/kirinyoku/tripslot/internal/notify"
	"github.com/kirinyoku/tripslot/internal/obs"
	"github.com/kirinyoku/tripslot/internal/payment"
	"github.com/kirinyoku/tripslot/internal/postgres"
	"github.com/kirinyoku/tripslot/internal/redis"
	"github.com/kirinyoku/tripslot/internal/repository"
	"github.com/kirinyoku/tripslot/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tripslot/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
	"github.com/kirinyoku/tripslot/internal/service"
	"github.com/kirinyoku/tripslot/internal/service/generator"
	"github.com/kirinyoku/tripslot/internal/service/ledger"
	"github.com/kirinyoku/tripslot/internal/service/scheduler"
	"github.com/kirinyoku/tripslot/internal/service/waitlist"
	httpgin "github.com/kirinyoku/tripslot/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	services *service.Services
	events   *redisrepo.SlotEvents
	hub      *ledger.Hub
	runner   *scheduler.Runner
	payments *consumer.Payments
	mqCons   *mq.Consumer

	closers []func() error
	tracer  func(context.Context) error
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()
	a := &App{cfg: cfg, logger: logger, hub: ledger.NewHub()}

	shutdownTracer, err := obs.InitTracer(ctx, obs.Config{
		ServiceName: cfg.Otel.ServiceName,
		Version:     "1.0",
		Environment: cfg.Otel.Environment,
		Endpoint:    cfg.Otel.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracer = shutdownTracer

	m := metrics.New()

	// Storage
	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	// Redis-backed collaborators are optional
	var (
		rdb     *goredis.Client
		cache   *redisrepo.Cache
		idem    *redisrepo.IdempotencyStore
		limiter *redisrepo.SlidingWindowLimiter
		lock    *redisrepo.JobLock
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)

		cache = redisrepo.New(rdb)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Platform.IdempotencyTTL)
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, "booking", cfg.RateLimit.Limit, cfg.RateLimit.Window)
		a.events = redisrepo.NewSlotEvents(rdb)
		lock = redisrepo.NewJobLock(rdb)
	} else {
		logger.Warn("REDIS_ADDR not set; cache, idempotency, rate limiting and job locks disabled")
	}

	// Messaging is optional
	sinks := []notify.Sink{
		notify.NewStoreSink(store.Repos().Notifications()),
		notify.NewLogSink(logger.With(slog.String("component", "notify"))),
	}
	var (
		refunder payment.Refunder
		conn     *amqp.Connection
	)
	if cfg.Rabbit.URL != "" {
		conn, err = mq.Dial(cfg.Rabbit.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize rabbitmq: %w", err)
		}
		a.closers = append(a.closers, conn.Close)

		pub, err := mq.NewPublisher(conn, cfg.Rabbit.BookingExchange)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)

		sinks = append(sinks, notify.NewBrokerSink(pub))
		refunder = payment.NewBrokerRefunder(pub)
	} else {
		logger.Warn("RABBIT_URL not set; broker events and payment consumer disabled")
	}

	var gateway payment.Gateway
	if cfg.Payment.APIURL != "" {
		client := payment.NewHTTPClient(cfg.Payment.APIURL, cfg.Payment.APIKey, cfg.Payment.Timeout)
		gateway = client
		if refunder == nil {
			refunder = client
		}
	} else {
		logger.Warn("PAYMENT_API_URL not set; checkout disabled")
	}

	loc := cfg.Platform.Location()

	// Services
	a.services = service.NewServices(service.Deps{
		Store:      store,
		Cache:      cache,
		Events:     a.events,
		Hub:        a.hub,
		Gateway:    gateway,
		Refunder:   refunder,
		Dispatcher: notify.NewDispatcher(logger, sinks...),
		Metrics:    m,
		Logger:     logger,
	}, service.Config{
		Ledger:    ledger.Config{Location: loc, CacheTTL: cfg.Platform.CacheTTL},
		Generator: generator.Config{Location: loc, IndefiniteHorizonDays: cfg.Platform.IndefiniteHorizonDays},
		Waitlist:  waitlist.Config{Window: cfg.Platform.WaitlistWindow},
		Scheduler: scheduler.Config{RefundBatch: cfg.Platform.RefundBatch},
	})

	if conn != nil {
		a.payments = consumer.NewPayments(a.services.Booking, logger)
		a.mqCons, err = mq.NewConsumer(conn, cfg.Rabbit.PaymentExchange, cfg.Rabbit.PaymentQueue, a.payments.Keys(), cfg.Rabbit.Prefetch)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, a.mqCons.Close)
	}

	if cfg.Cron.Enabled {
		a.runner, err = scheduler.NewRunner(a.services.Jobs, scheduler.Schedules{
			scheduler.JobGenerateSlots:  cfg.Cron.Generate,
			scheduler.JobExpireWaitlist: cfg.Cron.Sweep,
			scheduler.JobCompleteSlots:  cfg.Cron.Sweep,
			scheduler.JobRetryRefunds:   cfg.Cron.Refunds,
		}, loc, lock, logger)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	if cfg.Webhook.Secret == "" {
		logger.Warn("WEBHOOK_SECRET not set; payment and refund callbacks are unauthenticated")
	}

	// Initialize Gin router
	router := httpgin.NewRouter(a.services, httpgin.Options{
		Idempotency:   idem,
		Limiter:       limiter,
		Metrics:       m,
		WebhookSecret: cfg.Webhook.Secret,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	if a.cfg.Storage.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory storage; data is lost on restart")
		return memory.NewStore(), nil
	}

	pc := a.cfg.Postgres
	pool, err := postgres.New(ctx, postgres.Config{
		User:     pc.User,
		Password: pc.Password,
		Name:     pc.Name,
		Host:     pc.Host,
		Port:     pc.Port,
		SSLMode:  pc.SSLMode,
		MaxConns: pc.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if pc.Migrate {
		if err := postgresrepo.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
	}
	return postgresrepo.NewStore(pool), nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	if a.runner != nil {
		g.Go(func() error { return a.runner.Run(gCtx) })
	}

	// Cross-instance slot changes feed the local stream hub
	if a.events != nil {
		g.Go(func() error {
			err := a.events.Subscribe(gCtx, func(_ context.Context, ch redisrepo.SlotChange) {
				a.hub.Broadcast(ch)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("slot events subscription: %w", err)
			}
			return nil
		})
	}

	if a.mqCons != nil {
		g.Go(func() error {
			deliveries, err := a.mqCons.Deliveries(gCtx)
			if err != nil {
				return fmt.Errorf("payment consumer: %w", err)
			}
			return a.payments.Run(gCtx, deliveries)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// close releases resources in reverse acquisition order.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil

	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
		a.tracer = nil
	}
}
