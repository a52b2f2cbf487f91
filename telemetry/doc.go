/*
Package telemetry wires OpenTelemetry tracing and metrics for the bot.

Initialization:

Initialize installs the global tracer provider, meter provider and
propagators from core.TelemetryConfig. Packages never hold a provider; they
call otel.Tracer and otel.Meter with their own instrumentation name and pick
up whatever was installed. When telemetry is disabled nothing is installed
and all instruments are no-ops.

	provider, err := telemetry.Initialize(ctx, cfg.Telemetry, cfg.Name)
	if err != nil {
	    return err
	}
	defer provider.Shutdown(context.Background())

Exporters:

  - otlp: traces and metrics over OTLP/gRPC to Endpoint
  - stdout: traces printed as JSON, for local debugging; metrics are not exported

HTTP:

NewTracedHTTPClient instruments outgoing requests (the CMS client) and
TracingMiddleware instruments the health server. Both propagate W3C trace
context through the globally installed propagator.
*/
package telemetry
