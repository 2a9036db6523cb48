package obs

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// ErrorReporter forwards unexpected failures to an error tracker.
type ErrorReporter interface {
	Report(ctx context.Context, err error)
}

// NopReporter discards reports.
type NopReporter struct{}

// Report implements ErrorReporter.
func (NopReporter) Report(context.Context, error) {}

// SentryReporter reports errors to Sentry.
type SentryReporter struct{}

// Report implements ErrorReporter.
func (SentryReporter) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// InitSentry configures the Sentry client when dsn is set. The returned flush
// function drains buffered events on shutdown.
func InitSentry(dsn, environment string, logger zerolog.Logger) (ErrorReporter, func()) {
	if strings.TrimSpace(dsn) == "" {
		return NopReporter{}, func() {}
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Environment: environment}); err != nil {
		logger.Error().Err(err).Msg("initialise sentry")
		return NopReporter{}, func() {}
	}
	return SentryReporter{}, func() { sentry.Flush(2 * time.Second) }
}
