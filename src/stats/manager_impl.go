package stats

import (
	gostats "github.com/lyft/gostats"
	logger "github.com/sirupsen/logrus"

	"github.com/reqgate/reqgate/src/settings"
	"github.com/reqgate/reqgate/src/utils"
)

type ManagerImpl struct {
	store               gostats.Store
	admissionStatsScope gostats.Scope
	endpointStatsScope  gostats.Scope
	serviceStatsScope   gostats.Scope
}

func NewStatManager(store gostats.Store, settings settings.Settings) *ManagerImpl {
	serviceScope := store.ScopeWithTags("reqgate", settings.ExtraTags).Scope("service")
	return &ManagerImpl{
		store:               store,
		admissionStatsScope: serviceScope.Scope("admission"),
		endpointStatsScope:  serviceScope.Scope("endpoint"),
		serviceStatsScope:   serviceScope,
	}
}

func (this *ManagerImpl) GetStatsStore() gostats.Store {
	return this.store
}

// Create admission stats for a policy.
// @param policy supplies the policy name.
// @return new stats.
func (this *ManagerImpl) NewAdmissionStats(policy string) AdmissionStats {
	key := utils.SanitizeStatName(policy)
	logger.Debugf("creating admission stats for policy: '%s'", key)
	ret := AdmissionStats{}
	ret.Key = key
	ret.TotalHits = this.admissionStatsScope.NewCounter(key + ".total_hits")
	ret.WithinLimit = this.admissionStatsScope.NewCounter(key + ".within_limit")
	ret.NearLimit = this.admissionStatsScope.NewCounter(key + ".near_limit")
	ret.OverLimit = this.admissionStatsScope.NewCounter(key + ".over_limit")
	ret.OverLimitWithLocalCache = this.admissionStatsScope.NewCounter(key + ".over_limit_with_local_cache")
	ret.Queued = this.admissionStatsScope.NewCounter(key + ".queued")
	ret.QueueTimeout = this.admissionStatsScope.NewCounter(key + ".queue_timeout")
	ret.QueueAbandoned = this.admissionStatsScope.NewCounter(key + ".queue_abandoned")
	return ret
}

func (this *ManagerImpl) NewEndpointStats(route string) EndpointStats {
	key := utils.SanitizeStatName(route)
	ret := EndpointStats{}
	ret.Key = key
	ret.Ok = this.endpointStatsScope.NewCounter(key + ".ok")
	ret.Rejected = this.endpointStatsScope.NewCounter(key + ".rejected")
	return ret
}

func (this *ManagerImpl) NewServiceStats() ServiceStats {
	ret := ServiceStats{}
	ret.ConfigLoadSuccess = this.serviceStatsScope.NewCounter("config_load_success")
	ret.ConfigLoadError = this.serviceStatsScope.NewCounter("config_load_error")
	return ret
}
