package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/TrackHub/config"
	"github.com/BearBump/TrackHub/internal/broker/kafka"
	"github.com/BearBump/TrackHub/internal/cache/rediscache"
	"github.com/BearBump/TrackHub/internal/classify"
	"github.com/BearBump/TrackHub/internal/integrations/source"
	"github.com/BearBump/TrackHub/internal/integrations/source/aftershiphttp"
	"github.com/BearBump/TrackHub/internal/integrations/source/amazonscrape"
	"github.com/BearBump/TrackHub/internal/integrations/source/cdekhtml"
	"github.com/BearBump/TrackHub/internal/integrations/source/pochtahtml"
	"github.com/BearBump/TrackHub/internal/resolver"
	"github.com/BearBump/TrackHub/internal/services/fetcher"
	"github.com/BearBump/TrackHub/internal/services/syncer"
	"github.com/BearBump/TrackHub/internal/sessions"
	"github.com/BearBump/TrackHub/internal/storage/pgtracking"
)

// workerStorage — всё, что нужно воркеру от хранилища: цикл синка
// плюс фиксация исправленного перевозчика.
type workerStorage interface {
	syncer.Repository
	UpdateCarrier(ctx context.Context, itemID uint64, carrierCode string) error
}

type rateLimiter interface {
	AllowCarrier(ctx context.Context, carrierCode string, limit int64, window time.Duration) (bool, error)
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (st workerStorage, closeFn func(), err error)
	newProducer    func(cfg *config.Config) syncer.Producer
	newRateLimiter func(cfg *config.Config) rateLimiter
	newChecker     func(cfg *config.Config, st workerStorage, rl rateLimiter) syncer.Checker
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStorage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgtracking.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) syncer.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) rateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newChecker: func(cfg *config.Config, st workerStorage, rl rateLimiter) syncer.Checker {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			sess := sessions.New(redisAddr)

			aggregator := aftershiphttp.New(
				cfg.TrackHub.AggregatorBaseURL,
				cfg.TrackHub.AggregatorAPIKey,
				cfg.TrackHub.AggregatorSlug,
			)
			merchant := amazonscrape.New(cfg.TrackHub.MerchantBaseURL, sess)
			direct := map[string]source.Source{
				classify.CarrierCDEK:   cdekhtml.New(cfg.TrackHub.CDEKBaseURL),
				classify.CarrierPostRU: pochtahtml.New(cfg.TrackHub.PochtaBaseURL),
			}

			limits := map[string]int64{}
			if n := cfg.TrackHub.CDEKRateLimitPerMinute; n > 0 {
				limits[classify.CarrierCDEK] = int64(n)
			}
			if n := cfg.TrackHub.PochtaRateLimitPerMinute; n > 0 {
				limits[classify.CarrierPostRU] = int64(n)
			}

			res := resolver.New(aggregator)
			return fetcher.New(res, st, rl, aggregator, merchant, direct, fetcher.Config{
				RateLimit:     int64(cfg.TrackHub.CarrierRateLimitPerMinute),
				RateWindow:    time.Minute,
				CarrierLimits: limits,
			})
		},
	}
}

func plannerConfigFrom(cfg *config.Config) syncer.PlannerConfig {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return syncer.PlannerConfig{
		ArchivedDelay:  sec(cfg.TrackHub.NextCheckArchivedSeconds),
		ActiveMinDelay: sec(cfg.TrackHub.NextCheckActiveMinSeconds),
		ActiveMaxDelay: sec(cfg.TrackHub.NextCheckActiveMaxSeconds),
		IdleDelay:      sec(cfg.TrackHub.NextCheckIdleSeconds),
		LoginDelay:     sec(cfg.TrackHub.NextCheckLoginSeconds),
		Backoff1:       sec(cfg.TrackHub.Backoff1Seconds),
		Backoff2:       sec(cfg.TrackHub.Backoff2Seconds),
		Backoff3:       sec(cfg.TrackHub.Backoff3Seconds),
		Backoff4:       sec(cfg.TrackHub.Backoff4Seconds),
	}
}

func buildSyncer(cfg *config.Config, f workerFactories) (*syncer.Syncer, func(), error) {
	quiet, err := syncer.ParseQuietHours(cfg.TrackHub.QuietHoursStart, cfg.TrackHub.QuietHoursEnd)
	if err != nil {
		return nil, nil, err
	}

	pollInterval := time.Duration(cfg.TrackHub.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	batchSize := cfg.TrackHub.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.TrackHub.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.TrackHub.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	checker := f.newChecker(cfg, st, rl)

	s := syncer.New(st, checker, producer, syncer.NotifyConfig{
		Enabled:       cfg.TrackHub.NotificationsEnabled,
		OnlyImportant: cfg.TrackHub.NotificationsOnlyImportant,
		Quiet:         quiet,
		Topic:         cfg.Kafka.NotificationIntentTopicName,
	}).
		WithSettings(pollInterval, batchSize, concurrency, lease).
		WithPlanner(plannerConfigFrom(cfg))

	return s, closeFn, nil
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	s, closeFn, err := buildSyncer(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return s.Run(ctx)
}
