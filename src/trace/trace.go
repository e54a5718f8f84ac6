package trace

import (
	"context"
	"sync"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
)

var (
	testSpanExporter   *tracetest.InMemoryExporter
	testSpanExporterMu sync.Mutex
)

func InitProductionTraceProvider(protocol string, serviceName string, serviceNamespace string, serviceInstanceId string, samplingRate float64) *sdktrace.TracerProvider {
	client := createClient(protocol)
	exporter, err := otlptrace.New(context.Background(), client)
	if err != nil {
		logger.Fatalf("creating OTLP trace exporter: %v", err)
	}

	useServiceInstanceId := serviceInstanceId
	if useServiceInstanceId == "" {
		intUuid, err := uuid.NewRandom()
		if err != nil {
			logger.Fatalf("generating random uuid for trace exporter: %v", err)
		}
		useServiceInstanceId = intUuid.String()
	}

	traceResource := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceNamespaceKey.String(serviceNamespace),
		semconv.ServiceInstanceIDKey.String(useServiceInstanceId),
	)

	// trace if parent contains root span and is sampled
	// otherwise only trace according to sampling rate
	// if samplingRate >= 1, the AlwaysSample sampler is used
	// if samplingRate <= 0, the NeverSampler sampler is used
	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRate))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(traceResource),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	logger.Infof("TracerProvider initialized with following parameters: protocol: %s, serviceName: %s, serviceNamespace: %s, serviceInstanceId: %s, samplingRate: %f",
		protocol, serviceName, serviceNamespace, useServiceInstanceId, samplingRate)
	return tp
}

func createClient(protocol string) (client otlptrace.Client) {
	// endpoint is implicitly set by env variables, refer to https://opentelemetry.io/docs/reference/specification/protocol/exporter/
	switch protocol {
	case "http", "":
		client = otlptracehttp.NewClient()
	case "grpc":
		client = otlptracegrpc.NewClient()
	default:
		logger.Fatalf("Invalid otlptrace client protocol: %s", protocol)
		panic("Invalid otlptrace client protocol")
	}
	return
}

// GetTestSpanExporter returns the shared in-memory exporter, initializing it
// and binding a synchronous trace provider on first use. It exists for tests
// only. Call it once per test package and keep the returned exporter in a
// package level variable.
func GetTestSpanExporter() *tracetest.InMemoryExporter {
	testSpanExporterMu.Lock()
	defer testSpanExporterMu.Unlock()
	if testSpanExporter != nil {
		return testSpanExporter
	}
	testSpanExporter = tracetest.NewInMemoryExporter()

	// use syncer instead of batcher here to leverage its synchronization
	// nature to avoid flaky tests
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(testSpanExporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return testSpanExporter
}
