package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/eventbooking/config"
	"github.com/Domenick1991/eventbooking/internal/cache"
	"github.com/Domenick1991/eventbooking/internal/email"
	"github.com/Domenick1991/eventbooking/internal/kafka"
	"github.com/Domenick1991/eventbooking/internal/logger"
	"github.com/Domenick1991/eventbooking/internal/metrics"
	"github.com/Domenick1991/eventbooking/internal/otp"
	"github.com/Domenick1991/eventbooking/internal/repository"
	"github.com/Domenick1991/eventbooking/internal/service/booking"
	"github.com/Domenick1991/eventbooking/internal/service/events"
	"github.com/Domenick1991/eventbooking/internal/ticket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App holds the services shared by the API and the worker.
type App struct {
	Bookings *booking.BookingService
	Events   *events.EventService
	Registry *prometheus.Registry
	Checks   []Check

	bus     *kafka.Producer
	closers []func()
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Registry: prometheus.NewRegistry()}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bookingRepo, eventRepo, err := app.storage(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	redisClient := cache.NewClient(cfg.Redis)
	app.closers = append(app.closers, func() { _ = redisClient.Close() })
	app.Checks = append(app.Checks, Check{Name: "redis", Ping: func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}})

	issuer, err := ticket.NewIssuer([]byte(cfg.Tickets.Secret), ticket.WithQRSize(cfg.Tickets.QRSizePx))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("ticket issuer: %w", err)
	}

	eventCache := cache.NewRedisCache(redisClient, cfg.EventsCacheTTL())
	opts := []booking.BookingServiceOption{
		booking.WithEventCache(eventCache),
		booking.WithMetrics(metrics.New(app.Registry)),
		booking.WithPendingTTL(cfg.PendingTTL()),
		booking.WithNotifier(app.notifier(cfg)),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		opts = append(opts, booking.WithProducer(app.producer(cfg), cfg.Kafka.BookingEventsTopic))
	}

	app.Bookings = booking.NewBookingService(bookingRepo, eventRepo, newOTPStore(redisClient, cfg), issuer, opts...)
	app.Events = events.NewEventService(eventRepo, eventCache)
	return app, nil
}

func (a *App) storage(ctx context.Context, cfg *config.Config) (repository.BookingRepository, repository.EventRepository, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		logger.Get().Warn("using in-memory storage, data is lost on restart")
		store := repository.NewMemoryStore()
		return store.Bookings(), store.Events(), nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.Checks = append(a.Checks, Check{Name: "postgres", Ping: pool.Ping})

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return repository.NewBookingRepository(pool), repository.NewEventRepository(pool), nil
}

func (a *App) producer(cfg *config.Config) *kafka.Producer {
	if a.bus != nil {
		return a.bus
	}
	a.bus = kafka.NewProducer(cfg.Kafka.Brokers)
	a.closers = append(a.closers, func() { _ = a.bus.Close() })
	a.Checks = append(a.Checks, Check{Name: "kafka", Ping: a.bus.CheckConnection})
	return a.bus
}

// notifier prefers the Kafka outbox, then direct SMTP, then the log.
func (a *App) notifier(cfg *config.Config) booking.Notifier {
	switch {
	case len(cfg.Kafka.Brokers) > 0:
		return kafka.NewNotificationPublisher(a.producer(cfg), cfg.Kafka.NotificationsTopic)
	case cfg.SMTP.Host != "":
		return email.NewSender(cfg.SMTP)
	default:
		return email.NewLogSender()
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newOTPStore(client *redis.Client, cfg *config.Config) *otp.RedisStore {
	return otp.NewRedisStore(client,
		otp.WithTTL(cfg.OTPTTL()),
		otp.WithPurgeGrace(cfg.OTPPurgeGrace()),
		otp.WithMaxAttempts(cfg.OTP.MaxAttempts),
	)
}
