package otel

import (
	"time"

	hostmetrics "go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
)

// StartRuntimeMetrics starts Go runtime (memory, GC, goroutines) and host
// (CPU, memory, network) metric collection on the installed meter provider
func StartRuntimeMetrics() error {
	if err := runtime.Start(
		runtime.WithMeterProvider(GetMeterProvider()),
		runtime.WithMinimumReadMemStatsInterval(30*time.Second),
	); err != nil {
		return err
	}
	return hostmetrics.Start(hostmetrics.WithMeterProvider(GetMeterProvider()))
}
