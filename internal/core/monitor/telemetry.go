package monitor

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func registerGauges(h *HealthReporter) {
	meter := otel.Meter("github.com/colonyops/auditagent/internal/core/monitor")

	_, err := meter.Int64ObservableGauge(
		"auditagent.queue.depth",
		metric.WithDescription("Number of artifacts awaiting delivery"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(h.queue.Size()))
			return nil
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue.depth gauge")
	}

	_, err = meter.Int64ObservableGauge(
		"auditagent.scratch.bytes",
		metric.WithDescription("Bytes used by the scratch folder at the last disk check"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(h.usage.UsageBytes())
			return nil
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scratch.bytes gauge")
	}
}
