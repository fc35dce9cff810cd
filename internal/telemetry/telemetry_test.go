package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/yairfalse/tether/internal/config"
	"github.com/yairfalse/tether/pkg/resource"
)

func disabledConfig() config.OTELConfig {
	return config.OTELConfig{
		ServiceName: "test-tether",
		Traces:      config.TracesConfig{Enabled: false},
		Metrics:     config.MetricsConfig{Enabled: false},
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), disabledConfig())
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.NotNil(t, p.Meter())

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_WithEndpoint(t *testing.T) {
	cfg := config.OTELConfig{
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "test-tether",
		Traces:      config.TracesConfig{Enabled: true, SampleRate: 1.0},
		Metrics:     config.MetricsConfig{Enabled: true},
	}

	// Exporters connect lazily, so setup succeeds without a collector.
	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestProvider_RecordStepAndWriteTextfile(t *testing.T) {
	p, err := NewProvider(context.Background(), disabledConfig())
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx := context.Background()
	p.RecordStep(ctx, resource.CategoryEBSVolumes, resource.StepResult{Status: resource.StatusOK}, 20*time.Millisecond)
	p.RecordStep(ctx, resource.CategoryS3Buckets, resource.StepResult{Status: resource.StatusFailed, Err: errors.New("x")}, time.Millisecond)

	path := filepath.Join(t.TempDir(), "tether.prom")
	require.NoError(t, p.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "tether_step_duration_seconds")
	assert.Contains(t, out, "tether_step_outcomes_total")
	assert.Contains(t, out, `category="S3Buckets"`)
	assert.Contains(t, out, `status="failed"`)
}

func TestProvider_WriteTextfile_BadPath(t *testing.T) {
	p, err := NewProvider(context.Background(), disabledConfig())
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	err = p.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "tether.prom"))
	assert.Error(t, err)
}

func TestTraceHook(t *testing.T) {
	p, err := NewProvider(context.Background(), disabledConfig())
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(TraceHook{})

	ctx, span := otel.Tracer("test").Start(context.Background(), "hooked")
	defer span.End()
	logger.Info().Ctx(ctx).Msg("with span")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, span.SpanContext().TraceID().String(), line["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), line["span_id"])
}

func TestTraceHook_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(TraceHook{})

	logger.Info().Msg("no context")
	logger.Info().Ctx(context.Background()).Msg("no span")

	assert.NotContains(t, buf.String(), "trace_id")
}
