package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaltestutil "layercake.run/internal/testutil"
)

func TestRecorder_RecordBuild(t *testing.T) {
	t.Parallel()

	recorder := NewRecorder()
	recorder.RecordBuild("DIRECT", 2*time.Second, nil)
	recorder.RecordBuild("DIRECT", time.Second, nil)
	recorder.RecordBuild("DOCKERFILE", time.Second, errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(recorder.builds.WithLabelValues("DIRECT", "succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(recorder.builds.WithLabelValues("DOCKERFILE", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(recorder.buildDuration))
}

func TestRecorder_RecordRegistryRetryAndImport(t *testing.T) {
	t.Parallel()

	recorder := NewRecorder()
	recorder.RecordRegistryRetry("pull")
	recorder.RecordRegistryRetry("pull")
	recorder.RecordImport(true)
	recorder.RecordImport(false)
	recorder.RecordImport(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(recorder.registryRetries.WithLabelValues("pull")))
	assert.Equal(t, float64(1), testutil.ToFloat64(recorder.imports.WithLabelValues("loaded")))
	assert.Equal(t, float64(2), testutil.ToFloat64(recorder.imports.WithLabelValues("skipped")))
}

func TestRecorder_Nil(t *testing.T) {
	t.Parallel()

	var recorder *Recorder
	recorder.RecordBuild("DIRECT", time.Second, nil)
	recorder.RecordRegistryRetry("push")
	recorder.RecordImport(true)
	require.NoError(t, recorder.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	t.Parallel()

	recorder := NewRecorder()
	recorder.RecordRegistryRetry("push")

	path := filepath.Join(t.TempDir(), "layercake.prom")
	require.NoError(t, recorder.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `layercake_registry_retries_total{operation="push"} 1`)

	metrics, err := internaltestutil.ReadTextfile(path)
	require.NoError(t, err)

	retries, err := internaltestutil.FindMetric(metrics, "registry_retries_total", "operation", "push")
	require.NoError(t, err)
	require.NotNil(t, retries)
	assert.Equal(t, float64(1), retries.GetCounter().GetValue())

	_, err = internaltestutil.FindMetric(metrics, "unknown_total", "operation", "push")
	require.Error(t, err)
}
