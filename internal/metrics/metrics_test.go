package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDepthCollectorScrapesLiveSnapshot(t *testing.T) {
	em := NewEmulator("10.0.0.1:9200")
	em.QueueDepths(2, 0, 7)

	expected := `
# HELP netlab_emulator_queue_depth Current number of packets held in a priority queue.
# TYPE netlab_emulator_queue_depth gauge
netlab_emulator_queue_depth{node="10.0.0.1:9200",priority="1"} 2
netlab_emulator_queue_depth{node="10.0.0.1:9200",priority="2"} 0
netlab_emulator_queue_depth{node="10.0.0.1:9200",priority="3"} 7
`
	require.NoError(t, testutil.CollectAndCompare(em.queueDepth, strings.NewReader(expected)))

	em.QueueDepths(0, 1, 0)
	q1, q2, q3 := em.Queues()
	assert.Equal(t, 0, q1)
	assert.Equal(t, 1, q2)
	assert.Equal(t, 0, q3)
}

func TestRoutingCountersAccumulate(t *testing.T) {
	em := NewEmulator("10.0.0.1:9300")
	r := NewRouting(em.Registry(), "10.0.0.1:9300")

	r.NeighborUp()
	r.NeighborDown()
	r.NeighborDown()
	r.TableRebuilt()

	assert.Equal(t, float64(1), testutil.ToFloat64(r.neighborsUp))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.neighborsDown))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.rebuilds))
}
