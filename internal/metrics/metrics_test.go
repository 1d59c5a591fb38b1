package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/devdeck/internal/events"
)

// value reads one sample from the registry; labels must match exactly.
func value(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	sample:
		for _, metric := range mf.GetMetric() {
			if len(metric.GetLabel()) != len(labels) {
				continue
			}
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue sample
				}
			}
			if g := metric.GetGauge(); g != nil {
				return g.GetValue()
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestObserveTracksLiveProcesses(t *testing.T) {
	m := New()

	m.Observe(events.Event{Tunnel: "Staging", Type: events.TypeConnect})
	m.Observe(events.Event{Tunnel: "Production", Type: events.TypeConnect})
	assert.Equal(t, 2.0, value(t, m, "devdeck_tunnel_processes", nil))

	m.Observe(events.Event{Tunnel: "Staging", Type: events.TypeDisconnect})
	m.Observe(events.Event{Tunnel: "Staging", Type: events.TypeProcessKilled})
	m.Observe(events.Event{Tunnel: "Production", Type: events.TypeProcessExited})
	m.Observe(events.Event{Tunnel: "Production", Type: events.TypeSpawnFailed})

	assert.Equal(t, 0.0, value(t, m, "devdeck_tunnel_processes", nil))
	assert.Equal(t, 2.0, value(t, m, "devdeck_tunnel_toggles_total", map[string]string{"state": "on"}))
	assert.Equal(t, 1.0, value(t, m, "devdeck_tunnel_toggles_total", map[string]string{"state": "off"}))
	assert.Equal(t, 1.0, value(t, m, "devdeck_tunnel_exits_total", map[string]string{"reason": "killed"}))
	assert.Equal(t, 1.0, value(t, m, "devdeck_tunnel_exits_total", map[string]string{"reason": "exited"}))
	assert.Equal(t, 1.0, value(t, m, "devdeck_tunnel_spawn_failures_total", nil))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetHealth("Backend", "api", true)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "devdeck_tunnel_processes"))
	assert.True(t, strings.Contains(text, `devdeck_healthcheck_up{section="Backend",service="api"} 1`))
}
