package telemetry

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/config"
)

// NewRelic starts the APM application. It returns nil, nil when no license
// key is configured so callers can treat APM as optional.
func NewRelic(cfg *config.ObservabilityConfig, l zerolog.Logger) (*newrelic.Application, error) {
	if !cfg.NewRelic.Enabled() {
		l.Info().Msg("new relic disabled")
		return nil, nil
	}
	name := cfg.NewRelic.AppName
	if name == "" {
		name = cfg.ServiceName + "-" + cfg.Environment
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(name),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(false),
	)
	if err != nil {
		return nil, fmt.Errorf("new relic application: %w", err)
	}
	l.Info().Str("app_name", name).Msg("new relic enabled")
	return app, nil
}

// ShutdownNewRelic flushes pending APM data.
func ShutdownNewRelic(app *newrelic.Application, timeout time.Duration) {
	if app == nil {
		return
	}
	app.Shutdown(timeout)
}
