package metrics

import (
	"os"
	"path/filepath"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := Registry.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestObserveOutcomes(t *testing.T) {
	labels := map[string]string{"operation": "test-observe", "status": "moved"}
	before := counterValue(t, "stow_outcomes_total", labels)

	ObserveOutcomes("test-observe", []types.Outcome{
		{Status: types.StatusMoved},
		{Status: types.StatusMoved},
		{Status: types.StatusFailed},
	})

	assert.Equal(t, before+2, counterValue(t, "stow_outcomes_total", labels))
	assert.Equal(t, float64(1), counterValue(t, "stow_outcomes_total",
		map[string]string{"operation": "test-observe", "status": "failed"}))
}

func TestWriteTextfile(t *testing.T) {
	HashedBytesTotal.Add(128)
	MarkRun("route")

	path := filepath.Join(t.TempDir(), "collector", "stow.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stow_hashed_bytes_total")
	assert.Contains(t, string(data), `stow_last_run_timestamp_seconds{operation="route"}`)
}

func TestWriteTextfileDisabled(t *testing.T) {
	assert.NoError(t, WriteTextfile(""))
}
