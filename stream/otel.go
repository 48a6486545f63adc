package stream

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/matt-g-everett/bustx/stream"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func counter(name, description string) metric.Int64Counter {
	c, err := meter().Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
