package capture

import (
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	artifactsCaptured metric.Int64Counter
	captureFailures   metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/colonyops/auditagent/internal/core/capture")

	var err error

	artifactsCaptured, err = meter.Int64Counter(
		"auditagent.capture.artifacts",
		metric.WithDescription("Number of artifacts captured and queued"),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create capture.artifacts counter")
	}

	captureFailures, err = meter.Int64Counter(
		"auditagent.capture.failures",
		metric.WithDescription("Number of capture attempts that produced no artifact"),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create capture.failures counter")
	}
}
