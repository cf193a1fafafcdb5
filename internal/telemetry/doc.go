// Package telemetry sets up OpenTelemetry tracing and metrics export for
// codetoname.
//
// Packages create their tracers and meters from the global otel providers.
// New installs OTLP-backed providers when telemetry is enabled; otherwise
// the globals stay no-op and instrumentation costs nothing.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Telemetry failures never stop a crawl. A provider that cannot be created
// leaves the instance degraded and Health reports why.
//
// Configuration:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc          # or http/protobuf
//	  sampling_rate: 1.0
//	  export_interval: 15s
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
