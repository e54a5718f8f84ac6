package stats

import stats "github.com/lyft/gostats"

type Manager interface {
	// NewAdmissionStats provides an AdmissionStats structure associated with a given policy.
	// Multiple calls with the same policy argument are guaranteed to be equivalent.
	NewAdmissionStats(policy string) AdmissionStats
	// NewEndpointStats provides outcome counters for a public route.
	NewEndpointStats(route string) EndpointStats
	// Initializes a ServiceStats structure.
	// Multiple calls to this method are idempotent.
	NewServiceStats() ServiceStats
	// Returns the stats.Store wrapped by the Manager.
	GetStatsStore() stats.Store
}

// Stats for an individual admission policy.
type AdmissionStats struct {
	Key                     string
	TotalHits               stats.Counter
	WithinLimit             stats.Counter
	NearLimit               stats.Counter
	OverLimit               stats.Counter
	OverLimitWithLocalCache stats.Counter
	Queued                  stats.Counter
	QueueTimeout            stats.Counter
	QueueAbandoned          stats.Counter
}

func (this AdmissionStats) GetKey() string {
	return this.Key
}

// Stats for a public endpoint's request outcomes.
type EndpointStats struct {
	Key      string
	Ok       stats.Counter
	Rejected stats.Counter
}

type ServiceStats struct {
	ConfigLoadSuccess stats.Counter
	ConfigLoadError   stats.Counter
}
