package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/storage/memory"
	"github.com/speedrift/driftdriver/internal/types"
)

func TestWrapStoreDisabledReturnsInner(t *testing.T) {
	t.Setenv("DRIFT_OTEL_ENABLED", "")
	inner := memory.New()
	assert.Same(t, inner, WrapStore(inner))
}

func TestWrapStoreEnabledDelegates(t *testing.T) {
	t.Setenv("DRIFT_OTEL_ENABLED", "true")
	require.NoError(t, Init(context.Background(), "driftdriver-test", "dev"))
	t.Cleanup(func() { _ = Shutdown(context.Background()) })

	inner := memory.New(&types.Task{ID: "a", Title: "alpha"})
	s := WrapStore(inner)
	_, ok := s.(*InstrumentedStore)
	require.True(t, ok)

	ctx := context.Background()
	tasks, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	id, err := s.CreateTask(ctx, &types.NewTask{ID: "b", Title: "beta"})
	require.NoError(t, err)
	assert.Equal(t, "b", id)

	_, err = s.ShowTask(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, s.AbandonTask(ctx, "a"))
	require.NoError(t, s.RescheduleTask(ctx, "b", 2))
	require.NoError(t, s.LogMessage(ctx, "b", "hello"))
	assert.Equal(t, []string{"hello"}, inner.Logs("b"))
}

func TestInitDisabledInstallsNoop(t *testing.T) {
	t.Setenv("DRIFT_OTEL_ENABLED", "false")
	require.NoError(t, Init(context.Background(), "driftdriver", "dev"))
	assert.NotNil(t, Tracer(""))
	assert.NotNil(t, Meter(""))
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("DRIFT_OTEL_ENABLED", "true")
	t.Setenv("DRIFT_OTEL_STDOUT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	t.Setenv("DRIFT_OTEL_METRIC_INTERVAL", "5s")
	t.Setenv("OTEL_SERVICE_NAME", "")

	s := loadSettings("driftdriver")
	assert.True(t, s.enabled)
	assert.False(t, s.stdout)
	assert.Equal(t, "localhost:4318", s.otlpEndpoint)
	assert.Equal(t, 5*time.Second, s.metricInterval)
	assert.Equal(t, "driftdriver", s.serviceName)

	t.Setenv("DRIFT_OTEL_METRIC_INTERVAL", "soon")
	t.Setenv("OTEL_SERVICE_NAME", "ci-drift")
	s = loadSettings("driftdriver")
	assert.Equal(t, defaultMetricInterval, s.metricInterval)
	assert.Equal(t, "ci-drift", s.serviceName)
}

func TestShutdownWithoutInit(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background()))
}
