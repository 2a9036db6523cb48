package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pay/internal/config"
	"github.com/noah-isme/toko-pay/internal/events"
	"github.com/noah-isme/toko-pay/internal/fulfilment"
	"github.com/noah-isme/toko-pay/internal/obs"
)

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	reporter, flushSentry := obs.InitSentry(cfg.SentryDSN, cfg.AppEnv, logger)

	if err := run(cfg, logger, reporter, flushSentry); err != nil {
		reportAndFlush(err, reporter, flushSentry)
		logger.Error().Err(err).Msg("worker stopped with error")
		os.Exit(1)
	}
	flushSentry()
	logger.Info().Msg("worker shutdown complete")
}

// reportAndFlush delivers err before the process exits; deferred flushes do
// not run past os.Exit.
func reportAndFlush(err error, reporter obs.ErrorReporter, flush func()) {
	reporter.Report(context.Background(), err)
	flush()
}

func run(cfg *config.Config, logger zerolog.Logger, reporter obs.ErrorReporter, flush func()) error {
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required for the fulfilment worker")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{fulfilment.Queue: 1},
		Logger:      asynqLogger{logger: logger, flush: flush},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("fulfilment task failed")
			reporter.Report(ctx, err)
		}),
	})

	handler := fulfilment.Handler{
		Logger: logger,
		OnPaid: func(ctx context.Context, _ events.Event) error {
			zerolog.Ctx(ctx).Info().Msg("order ready for fulfilment")
			return nil
		},
		OnFail: func(ctx context.Context, _ events.Event) error {
			zerolog.Ctx(ctx).Info().Msg("payment failed; customer follow-up queued")
			return nil
		},
	}
	mux := asynq.NewServeMux()
	handler.Register(mux)

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	// Run blocks until SIGINT/SIGTERM and drains in-flight tasks.
	return srv.Run(mux)
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	logger zerolog.Logger
	flush  func()
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) {
	if l.flush != nil {
		l.flush()
	}
	l.logger.Fatal().Msg(fmt.Sprint(args...))
}
