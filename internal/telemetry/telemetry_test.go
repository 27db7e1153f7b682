package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/batchflow/config"
)

// preserveGlobals snapshots the global OTel providers and restores them when
// the test ends so tests don't leak state into each other.
func preserveGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	mp := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
	})
}

func TestSetup_Disabled(t *testing.T) {
	preserveGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.Same(t, before, otel.GetTracerProvider(), "disabled setup must not replace the global provider")
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_EnabledInstallsSDKProviders(t *testing.T) {
	preserveGlobals(t)

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		ServiceName:  "batchflow-test",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   0.5,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)

	// No collector is listening, so shutdown may report a connection
	// error. It only needs to return within the deadline without panic.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = shutdown(ctx) })
}

func TestModuleVersion(t *testing.T) {
	assert.Equal(t, "dev", moduleVersion())
}
