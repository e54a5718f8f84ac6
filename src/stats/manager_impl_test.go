package stats_test

import (
	"testing"

	gostats "github.com/lyft/gostats"
	"github.com/stretchr/testify/assert"

	"github.com/reqgate/reqgate/src/settings"
	"github.com/reqgate/reqgate/src/stats"
)

func TestAdmissionStatsAreSharedPerPolicy(t *testing.T) {
	assert := assert.New(t)
	sm := stats.NewStatManager(gostats.NewStore(gostats.NewNullSink(), false), settings.Settings{})

	a := sm.NewAdmissionStats("api")
	b := sm.NewAdmissionStats("api")
	assert.Equal("api", a.GetKey())

	a.TotalHits.Inc()
	b.TotalHits.Inc()
	assert.Equal(uint64(2), a.TotalHits.Value())

	a.OverLimit.Add(3)
	assert.Equal(uint64(3), b.OverLimit.Value())
}

func TestEndpointStatsKeySanitized(t *testing.T) {
	assert := assert.New(t)
	sm := stats.NewStatManager(gostats.NewStore(gostats.NewNullSink(), false), settings.Settings{})

	es := sm.NewEndpointStats("/api/redirect")
	assert.Equal("api_redirect", es.Key)

	es.Ok.Inc()
	es.Rejected.Inc()
	es.Rejected.Inc()
	assert.Equal(uint64(1), es.Ok.Value())
	assert.Equal(uint64(2), es.Rejected.Value())
}

func TestServiceStats(t *testing.T) {
	assert := assert.New(t)
	sm := stats.NewStatManager(gostats.NewStore(gostats.NewNullSink(), false), settings.Settings{})

	ss := sm.NewServiceStats()
	ss.ConfigLoadSuccess.Inc()
	assert.Equal(uint64(1), ss.ConfigLoadSuccess.Value())
	assert.Equal(uint64(0), ss.ConfigLoadError.Value())
}
