package delivery

import (
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeDelivered      = "delivered"
	outcomeUnacknowledged = "unacknowledged"
	outcomeSubmitFailed   = "submission_failed"
	outcomeDeferred       = "deferred"
	outcomeMissing        = "missing"
)

var (
	uploads  metric.Int64Counter
	discards metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/colonyops/auditagent/internal/core/delivery")

	var err error

	uploads, err = meter.Int64Counter(
		"auditagent.delivery.uploads",
		metric.WithDescription("Delivery attempts by outcome"),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create delivery.uploads counter")
	}

	discards, err = meter.Int64Counter(
		"auditagent.delivery.discards",
		metric.WithDescription("Artifacts discarded after exhausting their retry budget"),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create delivery.discards counter")
	}
}

func outcomeAttr(outcome string) metric.AddOption {
	return metric.WithAttributes(attribute.String("outcome", outcome))
}
