package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	redisv8 "github.com/go-redis/redis/v8"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gammafunnel/internal/account"
	"github.com/sawpanic/gammafunnel/internal/application/pipeline"
	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/data"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
	progress "github.com/sawpanic/gammafunnel/internal/log"
	"github.com/sawpanic/gammafunnel/internal/metrics"
	"github.com/sawpanic/gammafunnel/internal/microstructure"
	"github.com/sawpanic/gammafunnel/internal/net/breaker"
	"github.com/sawpanic/gammafunnel/internal/net/ratelimit"
	"github.com/sawpanic/gammafunnel/internal/persistence"
	"github.com/sawpanic/gammafunnel/internal/persistence/postgres"
	"github.com/sawpanic/gammafunnel/internal/persistence/redisstore"
	"github.com/sawpanic/gammafunnel/internal/stream"
)

// app is a fully wired funnel plus the resources that must be released after use
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	metrics  *metrics.Registry
	sinks    stream.Multi
	closers  []func() error
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Str("storage", cfg.Storage.Backend).Msg("Configuration loaded")
	return cfg, nil
}

// buildApp wires providers, storage and event sinks. A nil progressOut disables the console
// progress view.
func buildApp(ctx context.Context, cfg *config.Config, progressOut io.Writer) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	snapshot := data.NewFileSource(cfg.Providers.DataDir)
	guards := data.Guards{
		Limiter: ratelimit.NewLimiter(cfg.Providers.RPS, cfg.Providers.Burst),
		Breakers: breaker.NewSet(breaker.Settings{
			ConsecutiveFailures: cfg.Providers.ConsecutiveFailures,
			Timeout:             cfg.Providers.BreakerTimeout,
			Interval:            cfg.Providers.BreakerInterval,
			Benign:              data.IsDataGap,
		}),
	}
	source := data.NewGuardedSource(snapshot, guards)
	flow := data.NewFallbackFlow(
		data.NewGuardedFlow(snapshot.Flow(), guards),
		source,
		cfg.Providers.FallbackDarkShare,
		cfg.Run.BarLookback,
	)

	history, ledger, closeStorage, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStorage)

	a.sinks = stream.Multi{stream.LogSink{Level: zerolog.InfoLevel}, a.metrics}
	if len(cfg.Events.KafkaBrokers) > 0 {
		ks, err := stream.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sinks = append(a.sinks, ks)
		log.Info().Strs("brokers", cfg.Events.KafkaBrokers).Str("topic", cfg.Events.KafkaTopic).
			Msg("Publishing phase events to Kafka")
	}
	if progressOut != nil {
		a.sinks = append(a.sinks, progress.NewPhaseProgress(progressOut, appName, pipeline.Phases))
	}

	a.pipeline, err = pipeline.New(cfg, pipeline.Deps{
		Source:   source,
		Flow:     flow,
		Calendar: data.NewGuardedCalendar(snapshot, guards),
		Macro:    snapshot,
		Breaker:  account.NewFileSource(cfg.Diagnostics.BreakerStatePath),
		History:  history,
		Ledger:   ledger,
		Sink:     a.sinks,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close flushes the event sinks and releases storage connections
func (a *app) Close() error {
	var errs []error
	if a.sinks != nil {
		errs = append(errs, a.sinks.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// openStorage opens the microstructure history and signal ledger for the configured backend
func openStorage(ctx context.Context, cfg config.StorageConfig) (microstructure.HistoryRepo, market.SignalLedger, func() error, error) {
	switch cfg.Backend {
	case "redis":
		histClient := redisv8.NewClient(&redisv8.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		ledgerClient := redisv9.NewClient(&redisv9.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		closeAll := func() error {
			return errors.Join(histClient.Close(), ledgerClient.Close())
		}

		pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
		defer cancel()
		if err := histClient.Ping(pingCtx).Err(); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("connect redis %s (history): %w", cfg.RedisAddr, err)
		}
		if err := ledgerClient.Ping(pingCtx).Err(); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("connect redis %s (ledger): %w", cfg.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("Using Redis storage")
		return redisstore.NewHistory(histClient, cfg.RedisPrefix),
			redisstore.NewLedger(ledgerClient, cfg.RedisPrefix),
			closeAll, nil

	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		migrateCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
		defer cancel()
		if err := postgres.Migrate(migrateCtx, db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		log.Info().Msg("Using PostgreSQL storage")
		return postgres.NewHistory(db, cfg.QueryTimeout), postgres.NewLedger(db, cfg.QueryTimeout), db.Close, nil

	default:
		log.Info().Str("dir", cfg.Dir).Msg("Using file storage")
		return persistence.NewFileHistory(filepath.Join(cfg.Dir, "micro")),
			persistence.NewFileLedger(filepath.Join(cfg.Dir, "ledger.json")),
			func() error { return nil }, nil
	}
}
