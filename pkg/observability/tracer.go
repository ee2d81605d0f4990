package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// GetTracer returns a tracer from the global provider. No span exporter is
// installed, so spans are no-ops unless an embedding process configures one.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
