package settings

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	// Server listen address config
	Host      string `envconfig:"HOST" default:"0.0.0.0"`
	Port      int    `envconfig:"PORT" default:"8080"`
	DebugHost string `envconfig:"DEBUG_HOST" default:"0.0.0.0"`
	DebugPort int    `envconfig:"DEBUG_PORT" default:"6070"`

	// Logging settings
	LogLevel  string `envconfig:"LOG_LEVEL" default:"WARN"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Gateway configuration
	// ConfigPath is the YAML file holding redirect hosts, origins and
	// admission policies. It is read once at startup; the process exits
	// when it is missing or invalid.
	ConfigPath string `envconfig:"CONFIG_PATH" default:"config/gateway.yaml"`

	// Admission settings
	// QueueMaxWait bounds how long a request may sit in a policy queue
	// waiting for the next window before it is denied.
	QueueMaxWait time.Duration `envconfig:"QUEUE_MAX_WAIT" default:"10s"`
	// NearLimitRatio is the fraction of a policy's permit limit past which
	// admissions are counted as near_limit.
	NearLimitRatio float32 `envconfig:"NEAR_LIMIT_RATIO" default:"0.8"`
	// LocalCacheSizeInBytes enables memoizing denials for exhausted
	// unqueued policies until their window closes. 0 disables the cache.
	LocalCacheSizeInBytes int `envconfig:"LOCAL_CACHE_SIZE_IN_BYTES" default:"0"`

	// Settings for optional returning of admission state headers
	RateLimitResponseHeadersEnabled bool `envconfig:"LIMIT_RESPONSE_HEADERS_ENABLED" default:"false"`
	// value: the current limit
	HeaderRatelimitLimit string `envconfig:"LIMIT_LIMIT_HEADER" default:"RateLimit-Limit"`
	// value: remaining count
	HeaderRatelimitRemaining string `envconfig:"LIMIT_REMAINING_HEADER" default:"RateLimit-Remaining"`
	// value: remaining seconds
	HeaderRatelimitReset string `envconfig:"LIMIT_RESET_HEADER" default:"RateLimit-Reset"`

	// Stats-related settings
	UseDogStatsd           bool              `envconfig:"USE_DOG_STATSD" default:"false"`
	UseDogStatsdMogrifiers []string          `envconfig:"USE_DOG_STATSD_MOGRIFIERS" default:""`
	UseStatsd              bool              `envconfig:"USE_STATSD" default:"true"`
	StatsdHost             string            `envconfig:"STATSD_HOST" default:"localhost"`
	StatsdPort             int               `envconfig:"STATSD_PORT" default:"8125"`
	ExtraTags              map[string]string `envconfig:"EXTRA_TAGS" default:""`
	StatsFlushInterval     time.Duration     `envconfig:"STATS_FLUSH_INTERVAL" default:"10s"`
	DisableStats           bool              `envconfig:"DISABLE_STATS" default:"false"`
	UsePrometheus          bool              `envconfig:"USE_PROMETHEUS" default:"false"`
	PrometheusAddr         string            `envconfig:"PROMETHEUS_ADDR" default:":9090"`
	PrometheusPath         string            `envconfig:"PROMETHEUS_PATH" default:"/metrics"`
	PrometheusMapperYaml   string            `envconfig:"PROMETHEUS_MAPPER_YAML" default:""`

	// OTLP trace settings
	TracingEnabled           bool   `envconfig:"TRACING_ENABLED" default:"false"`
	TracingServiceName       string `envconfig:"TRACING_SERVICE_NAME" default:"reqgate"`
	TracingServiceNamespace  string `envconfig:"TRACING_SERVICE_NAMESPACE" default:""`
	TracingServiceInstanceId string `envconfig:"TRACING_SERVICE_INSTANCE_ID" default:""`
	// can only be http or gRPC
	TracingExporterProtocol string `envconfig:"TRACING_EXPORTER_PROTOCOL" default:"http"`
	// detailed setting of exporter should refer to https://opentelemetry.io/docs/reference/specification/protocol/exporter/, e.g. OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_TIMEOUT
	// TracingSamplingRate defaults to 1 which amounts to using the `AlwaysSample` sampler
	TracingSamplingRate float64 `envconfig:"TRACING_SAMPLING_RATE" default:"1"`
}

func NewSettings() Settings {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		panic(err)
	}
	return s
}
