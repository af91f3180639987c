package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.IncAttempts()
	m.IncAttempts()
	m.ObserveSession(OutcomeSuccess)
	m.IncEmbeddingRetries()
	m.SetIndexChunks(42)
	m.ObserveSimulation(1500 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessions.WithLabelValues(OutcomeExhausted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.embeddingRetries))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.indexChunks))
	assert.Equal(t, 1, testutil.CollectAndCount(m.simulation))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IncAttempts()
		m.ObserveSession(OutcomeError)
		m.IncEmbeddingRetries()
		m.ObserveSimulation(time.Second)
		m.SetIndexChunks(1)
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.IncAttempts()
	m.ObserveSession(OutcomeExhausted)

	path := filepath.Join(t.TempDir(), "labrag.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "labrag_attempts_total 1")
	assert.Contains(t, string(data), `labrag_sessions_total{outcome="exhausted"} 1`)

	assert.NoError(t, m.WriteTextfile(""))
}
