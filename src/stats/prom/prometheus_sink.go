package prom

import (
	_ "embed"
	"net/http"

	"github.com/go-kit/log"
	gostats "github.com/lyft/gostats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/statsd_exporter/pkg/event"
	"github.com/prometheus/statsd_exporter/pkg/exporter"
	"github.com/prometheus/statsd_exporter/pkg/mapper"
	logger "github.com/sirupsen/logrus"
)

var (
	//go:embed default_mapper.yaml
	defaultMapper string
	_             gostats.Sink = &prometheusSink{}

	eventsActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsd_exporter_events_actions_total",
			Help: "The total number of StatsD events by action.",
		},
		[]string{"action"},
	)
	eventsUnmapped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statsd_exporter_events_unmapped_total",
			Help: "The total number of StatsD events no mapping was found for.",
		})
	metricsCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statsd_exporter_metrics_total",
			Help: "The total number of metrics.",
		},
		[]string{"type"},
	)
	conflictingEventStats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsd_exporter_events_conflict_total",
			Help: "The total number of StatsD events with conflicting names.",
		},
		[]string{"type"},
	)
	eventStats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsd_exporter_events_total",
			Help: "The total number of StatsD events seen.",
		},
		[]string{"type"},
	)
	errorEventStats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsd_exporter_events_error_total",
			Help: "The total number of StatsD events discarded due to errors.",
		},
		[]string{"reason"},
	)
)

type prometheusSink struct {
	config struct {
		addr           string
		path           string
		mapperYamlPath string
	}
	mapper *mapper.MetricMapper
	events chan event.Events
	exp    *exporter.Exporter
}

type prometheusSinkOption func(sink *prometheusSink)

// WithAddr sets the listen address of the scrape endpoint.
func WithAddr(addr string) prometheusSinkOption {
	return func(sink *prometheusSink) {
		sink.config.addr = addr
	}
}

// WithPath sets the HTTP path the scrape endpoint is served under.
func WithPath(path string) prometheusSinkOption {
	return func(sink *prometheusSink) {
		sink.config.path = path
	}
}

// WithMapperYamlPath replaces the embedded mapping rules with a
// statsd_exporter mapper configuration loaded from disk.
func WithMapperYamlPath(mapperYamlPath string) prometheusSinkOption {
	return func(sink *prometheusSink) {
		sink.config.mapperYamlPath = mapperYamlPath
	}
}

// NewPrometheusSink returns a Sink that translates gostats flushes into
// prometheus metrics through a statsd_exporter mapper and exposes them on a
// scrape endpoint.
func NewPrometheusSink(opts ...prometheusSinkOption) gostats.Sink {
	promRegistry := prometheus.DefaultRegisterer
	sink := &prometheusSink{
		events: make(chan event.Events),
		mapper: &mapper.MetricMapper{
			Registerer: promRegistry,
		},
	}
	for _, opt := range opts {
		opt(sink)
	}
	if sink.config.addr == "" {
		sink.config.addr = ":9090"
	}
	if sink.config.path == "" {
		sink.config.path = "/metrics"
	}

	// The scrape endpoint gets its own mux. The default mux carries pprof
	// handlers registered by the debug listener's imports.
	scrapeMux := http.NewServeMux()
	scrapeMux.Handle(sink.config.path, promhttp.Handler())
	go func() {
		logger.Infof("Starting prometheus sink on %s%s", sink.config.addr, sink.config.path)
		_ = http.ListenAndServe(sink.config.addr, scrapeMux)
	}()

	var err error
	if sink.config.mapperYamlPath != "" {
		err = sink.mapper.InitFromFile(sink.config.mapperYamlPath)
	} else {
		err = sink.mapper.InitFromYAMLString(defaultMapper)
	}
	if err != nil {
		logger.Errorf("Failed to load prometheus mapper configuration: %v", err)
	}

	sink.exp = exporter.NewExporter(promRegistry,
		sink.mapper, log.NewNopLogger(),
		eventsActions, eventsUnmapped,
		errorEventStats, eventStats,
		conflictingEventStats, metricsCount)

	go func() {
		sink.exp.Listen(sink.events)
	}()

	return sink
}

func (s *prometheusSink) FlushCounter(name string, value uint64) {
	s.events <- event.Events{&event.CounterEvent{
		CMetricName: name,
		CValue:      float64(value),
		CLabels:     make(map[string]string),
	}}
}

func (s *prometheusSink) FlushGauge(name string, value uint64) {
	s.events <- event.Events{&event.GaugeEvent{
		GMetricName: name,
		GValue:      float64(value),
		GLabels:     make(map[string]string),
	}}
}

func (s *prometheusSink) FlushTimer(name string, value float64) {
	s.events <- event.Events{&event.ObserverEvent{
		OMetricName: name,
		OValue:      value,
		OLabels:     make(map[string]string),
	}}
}
