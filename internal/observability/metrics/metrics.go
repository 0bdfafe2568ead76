package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	checkouts       metric.Int64Counter
	paymentEvents   metric.Int64Counter
	fulfillments    metric.Int64Counter
	creditsMinted   metric.Int64Counter
	creditsConsumed metric.Int64Counter
	consumeRejected metric.Int64Counter
	integrityAlerts metric.Int64Counter
	rateLimitDenied metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "hireboard"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.checkouts, "hireboard_checkouts_created_total"},
		{&m.paymentEvents, "hireboard_payment_events_total"},
		{&m.fulfillments, "hireboard_fulfillments_total"},
		{&m.creditsMinted, "hireboard_credits_minted_total"},
		{&m.creditsConsumed, "hireboard_credits_consumed_total"},
		{&m.consumeRejected, "hireboard_credit_consume_rejected_total"},
		{&m.integrityAlerts, "hireboard_integrity_alerts_total"},
		{&m.rateLimitDenied, "hireboard_rate_limit_denied_total"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

// RecordCheckout counts created checkout intents by purchase kind.
func (m *Metrics) RecordCheckout(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.checkouts.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("kind", kind))...))
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFulfillment counts fulfillment attempts by kind and outcome.
func (m *Metrics) RecordFulfillment(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)
	m.fulfillments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCreditsMinted(ctx context.Context, creditType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.creditsMinted.Add(ctx, int64(count), metric.WithAttributes(FilterAttributes(attribute.String("credit_type", creditType))...))
}

func (m *Metrics) RecordCreditConsumed(ctx context.Context, creditType, gate string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("credit_type", creditType),
		attribute.String("gate", gate),
	)
	m.creditsConsumed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordConsumeRejected(ctx context.Context, creditType, gate, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("credit_type", creditType),
		attribute.String("gate", gate),
		attribute.String("reason", reason),
	)
	m.consumeRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordIntegrityAlert counts conditions that indicate a logic or data bug.
func (m *Metrics) RecordIntegrityAlert(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.integrityAlerts.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("reason", reason))...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("endpoint", endpoint))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"kind":        {},
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"outcome":     {},
	"credit_type": {},
	"gate":        {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
