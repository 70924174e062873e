package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Domenick1991/eventbooking/config"
	"github.com/Domenick1991/eventbooking/internal/bootstrap"
	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/Domenick1991/eventbooking/internal/email"
	"github.com/Domenick1991/eventbooking/internal/kafka"
	"github.com/Domenick1991/eventbooking/internal/logger"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/spf13/pflag"
)

const deliveryAttempts = 3

type deliverer interface {
	Notify(ctx context.Context, n domain.Notification) error
}

func main() {
	cfgPath := pflag.StringP("config", "c", "", "path to the yaml config (defaults to $CONFIG_PATH, then config.yaml)")
	pflag.Parse()

	path := *cfgPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Fatal("load config", "error", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewApp(ctx, cfg)
	if err != nil {
		logger.Fatal("init app", "error", err)
	}
	defer app.Close()

	var wg sync.WaitGroup
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
		defer consumer.Close()

		var out deliverer = email.NewLogSender()
		if cfg.SMTP.Host != "" {
			out = email.NewSender(cfg.SMTP)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Consume(ctx, deliver(out)); err != nil {
				logger.Get().Error("consumer stopped", "error", err)
				stop()
			}
		}()
	} else {
		logger.Get().Warn("no kafka brokers configured, notifications are delivered inline")
	}

	reap(ctx, app, cfg.SweepInterval())
	wg.Wait()
	logger.Get().Info("worker stopped")
}

// deliver sends one notification, retrying a few times. Messages that cannot
// be decoded or delivered are logged and skipped.
func deliver(out deliverer) func(context.Context, kafkaGo.Message) error {
	return func(ctx context.Context, msg kafkaGo.Message) error {
		n, err := kafka.DecodeNotification(msg)
		if err != nil {
			logger.WithContext(ctx).Error("skip undecodable notification", "error", err)
			return nil
		}

		for attempt := 1; attempt <= deliveryAttempts; attempt++ {
			if err = out.Notify(ctx, n); err == nil {
				return nil
			}
			logger.WithContext(ctx).Warn("notification delivery failed",
				"kind", n.Kind, "booking_id", n.BookingID, "attempt", attempt, "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		logger.WithContext(ctx).Error("notification dropped", "kind", n.Kind, "booking_id", n.BookingID, "error", err)
		return nil
	}
}

func reap(ctx context.Context, app *bootstrap.App, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	log := logger.WithFields("component", "reaper", "interval", every.String())

	for {
		select {
		case <-ticker.C:
			lapsed, err := app.Bookings.ExpirePendingBookings(ctx)
			if err != nil {
				log.Error("expire bookings", "error", err)
				continue
			}
			if len(lapsed) > 0 {
				log.Info("lapsed pending bookings", "count", len(lapsed))
			}
		case <-ctx.Done():
			return
		}
	}
}
