package runner

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coocood/freecache"
	gostats "github.com/lyft/gostats"
	logger "github.com/sirupsen/logrus"

	"github.com/reqgate/reqgate/src/config"
	"github.com/reqgate/reqgate/src/godogstats"
	"github.com/reqgate/reqgate/src/limiter"
	"github.com/reqgate/reqgate/src/metrics"
	"github.com/reqgate/reqgate/src/redirect"
	"github.com/reqgate/reqgate/src/server"
	gateway "github.com/reqgate/reqgate/src/service"
	"github.com/reqgate/reqgate/src/settings"
	"github.com/reqgate/reqgate/src/stats"
	"github.com/reqgate/reqgate/src/stats/prom"
	"github.com/reqgate/reqgate/src/trace"
	"github.com/reqgate/reqgate/src/utils"
)

type Runner struct {
	statsManager stats.Manager
	settings     settings.Settings
	srv          server.Server
	mu           sync.Mutex
}

func NewRunner(s settings.Settings) Runner {
	return Runner{
		statsManager: stats.NewStatManager(createStatsStore(s), s),
		settings:     s,
	}
}

func createStatsStore(s settings.Settings) gostats.Store {
	var store gostats.Store
	if s.DisableStats {
		logger.Info("Stats disabled")
		store = gostats.NewStore(gostats.NewNullSink(), false)
	} else if s.UseDogStatsd {
		if s.UseStatsd {
			logger.Fatalf("Error: unable to use both stats sinks at the same time. Set either USE_DOG_STATSD or USE_STATSD but not both.")
		}
		sink, err := godogstats.NewSink(
			godogstats.WithStatsdHost(s.StatsdHost),
			godogstats.WithStatsdPort(s.StatsdPort),
			godogstats.WithMogrifierFromEnv(s.UseDogStatsdMogrifiers))
		if err != nil {
			logger.Fatalf("Failed to create dogstatsd sink: %v", err)
		}
		logger.Info("Stats initialized for dogstatsd")
		store = gostats.NewStore(sink, false)
	} else if s.UsePrometheus {
		logger.Info("Stats initialized for Prometheus")
		store = gostats.NewStore(prom.NewPrometheusSink(
			prom.WithAddr(s.PrometheusAddr),
			prom.WithPath(s.PrometheusPath),
			prom.WithMapperYamlPath(s.PrometheusMapperYaml)), false)
	} else if s.UseStatsd {
		logger.Info("Stats initialized for statsd")
		store = gostats.NewStore(gostats.NewTCPStatsdSink(
			gostats.WithStatsdHost(s.StatsdHost),
			gostats.WithStatsdPort(s.StatsdPort)), false)
	} else {
		logger.Info("Stats initialized for logging sink")
		store = gostats.NewStore(&stats.LoggingSink{}, false)
	}
	go store.Start(time.NewTicker(s.StatsFlushInterval))
	return store
}

func (runner *Runner) GetStatsStore() gostats.Store {
	return runner.statsManager.GetStatsStore()
}

// loadConfig reads the gateway config file and converts load panics into a
// fatal so a bad config never serves traffic.
func loadConfig(s settings.Settings, statsManager stats.Manager, serviceStats stats.ServiceStats) (gateConfig config.GateConfig) {
	defer func() {
		if e := recover(); e != nil {
			serviceStats.ConfigLoadError.Inc()
			configError, ok := e.(config.GateConfigError)
			if !ok {
				panic(e)
			}
			logger.Fatalf("Failed to load admission gateway config: %s", configError.Error())
		}
	}()

	gateConfig = config.LoadFile(s.ConfigPath, statsManager)
	serviceStats.ConfigLoadSuccess.Inc()
	return gateConfig
}

func (runner *Runner) Run() {
	s := runner.settings
	if s.TracingEnabled {
		tp := trace.InitProductionTraceProvider(s.TracingExporterProtocol, s.TracingServiceName, s.TracingServiceNamespace, s.TracingServiceInstanceId, s.TracingSamplingRate)
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Printf("Error shutting down tracer provider: %v", err)
			}
		}()
	} else {
		logger.Infof("Tracing disabled")
	}

	logLevel, err := logger.ParseLevel(s.LogLevel)
	if err != nil {
		logger.Fatalf("Could not parse log level. %v\n", err)
	} else {
		logger.SetLevel(logLevel)
	}
	if strings.ToLower(s.LogFormat) == "json" {
		logger.SetFormatter(&logger.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logger.FieldMap{
				logger.FieldKeyTime: "@timestamp",
				logger.FieldKeyMsg:  "@message",
			},
		})
	}

	var localCache *freecache.Cache
	if s.LocalCacheSizeInBytes != 0 {
		localCache = freecache.NewCache(s.LocalCacheSizeInBytes)
	}

	srv := server.NewServer(s, "reqgate", runner.statsManager.GetStatsStore(), localCache)
	runner.mu.Lock()
	runner.srv = srv
	runner.mu.Unlock()

	gateConfig := loadConfig(s, runner.statsManager, runner.statsManager.NewServiceStats())
	if err := srv.HealthChecker().Ok(server.ConfigHealthComponentName); err != nil {
		logger.Errorf("Unable to update health status: %s", err)
	}

	timeSource := utils.NewTimeSourceImpl()
	service := gateway.NewService(
		gateConfig,
		limiter.NewFixedWindowLimiterFromSettings(s, gateConfig, timeSource, localCache),
		redirect.NewValidator(gateConfig),
		runner.statsManager,
		s,
		srv.AdmissionFeed(),
		timeSource,
	)

	srv.AddDebugHttpEndpoint(
		"/gateconfig",
		"print out the currently loaded configuration for debugging",
		func(writer http.ResponseWriter, request *http.Request) {
			if current := service.GetCurrentConfig(); current != nil {
				io.WriteString(writer, current.Dump())
			}
		})

	serverReporter := metrics.NewServerReporter(srv.Scope().Scope("http"))
	srv.Router().Use(serverReporter.Middleware)

	service.Register(srv.Router())

	srv.Start()
}

func (runner *Runner) Stop() {
	runner.mu.Lock()
	srv := runner.srv
	runner.mu.Unlock()
	if srv != nil {
		srv.Stop()
	}
}
