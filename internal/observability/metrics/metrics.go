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

// Metrics exposes application-level instruments for wallet operations.
type Metrics struct {
	holds             metric.Int64Counter
	settles           metric.Int64Counter
	releases          metric.Int64Counter
	topups            metric.Int64Counter
	adjustments       metric.Int64Counter
	insufficientFunds metric.Int64Counter
	quotaDecisions    metric.Int64Counter
	settledAmount     metric.Int64Counter
	autoTopupAttempts metric.Int64Counter
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
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "kassa"
	}
	meter := provider.Meter(name)

	holds, err := meter.Int64Counter("kassa_wallet_holds_total")
	if err != nil {
		return nil, err
	}
	settles, err := meter.Int64Counter("kassa_wallet_settles_total")
	if err != nil {
		return nil, err
	}
	releases, err := meter.Int64Counter("kassa_wallet_releases_total")
	if err != nil {
		return nil, err
	}
	topups, err := meter.Int64Counter("kassa_wallet_topups_total")
	if err != nil {
		return nil, err
	}
	adjustments, err := meter.Int64Counter("kassa_wallet_adjustments_total")
	if err != nil {
		return nil, err
	}
	insufficientFunds, err := meter.Int64Counter("kassa_wallet_insufficient_funds_total")
	if err != nil {
		return nil, err
	}
	quotaDecisions, err := meter.Int64Counter("kassa_lead_magnet_decisions_total")
	if err != nil {
		return nil, err
	}
	settledAmount, err := meter.Int64Counter("kassa_wallet_settled_minor_units_total")
	if err != nil {
		return nil, err
	}
	autoTopupAttempts, err := meter.Int64Counter("kassa_auto_topup_attempts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		holds:             holds,
		settles:           settles,
		releases:          releases,
		topups:            topups,
		adjustments:       adjustments,
		insufficientFunds: insufficientFunds,
		quotaDecisions:    quotaDecisions,
		settledAmount:     settledAmount,
		autoTopupAttempts: autoTopupAttempts,
	}, nil
}

// RecordHold increments hold counts by reference type.
func (m *Metrics) RecordHold(ctx context.Context, referenceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reference_type", strings.TrimSpace(referenceType)))
	m.holds.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSettle increments settle counts and the settled amount by reference type.
func (m *Metrics) RecordSettle(ctx context.Context, referenceType string, amount int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reference_type", strings.TrimSpace(referenceType)))
	m.settles.Add(ctx, 1, metric.WithAttributes(attrs...))
	if amount > 0 {
		m.settledAmount.Add(ctx, amount, metric.WithAttributes(attrs...))
	}
}

// RecordRelease increments release counts by reference type.
func (m *Metrics) RecordRelease(ctx context.Context, referenceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reference_type", strings.TrimSpace(referenceType)))
	m.releases.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTopup increments topup counts by reference type.
func (m *Metrics) RecordTopup(ctx context.Context, referenceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reference_type", strings.TrimSpace(referenceType)))
	m.topups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAdjustment increments adjustment counts by reference type.
func (m *Metrics) RecordAdjustment(ctx context.Context, referenceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reference_type", strings.TrimSpace(referenceType)))
	m.adjustments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInsufficientFunds increments rejected-hold counts by reason.
func (m *Metrics) RecordInsufficientFunds(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.insufficientFunds.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordQuotaDecision increments free-quota evaluation counts.
func (m *Metrics) RecordQuotaDecision(ctx context.Context, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	attrs := FilterAttributes(attribute.String("reason", outcome))
	m.quotaDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAutoTopupAttempt increments auto-topup attempt counts by status.
func (m *Metrics) RecordAutoTopupAttempt(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(status)))
	m.autoTopupAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"reference_type": {},
	"reason":         {},
	"route":          {},
	"method":         {},
	"status_code":    {},
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
