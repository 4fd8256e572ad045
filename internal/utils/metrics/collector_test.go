package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsRefreshes(t *testing.T) {
	c := NewCollector()

	c.RecordRefresh("success", 20*time.Millisecond)
	c.RecordRefresh("success", 30*time.Millisecond)
	c.RecordRefresh("partial", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.refreshTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshTotal.WithLabelValues("partial")))
}

func TestCollectorConnectionGaugeTracksLatestStatus(t *testing.T) {
	c := NewCollector()

	c.RecordProbe("error", false)
	c.RecordProbe("connected", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.connection.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.connection.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probeTotal.WithLabelValues("failure")))
}

func TestCollectorsDoNotShareRegistries(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.RecordStreamCommand("start", true)
	b.ObserveRequest("portfolio", time.Millisecond, errors.New("boom"))

	families, err := b.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "dashsync_stream_commands_total" {
			t.Fatalf("stream command recorded by a leaked into b")
		}
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(a.streamCommands.WithLabelValues("start", "success")))
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector()
	c.RecordStreamCommand("stop", false)
	c.Reset()
	assert.Equal(t, 0, testutil.CollectAndCount(c.streamCommands))
}
