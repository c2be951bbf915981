package lockmetrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/christophcemper/datasetlock"
)

// OTelObserver records lock events as OpenTelemetry instruments.
type OTelObserver struct {
	acquisitions metric.Int64Counter
	contentions  metric.Int64Counter
	waitSeconds  metric.Float64Histogram
	holdSeconds  metric.Float64Histogram
	held         metric.Int64Gauge
}

var _ datasetlock.Observer = (*OTelObserver)(nil)

// NewOTelObserver creates the instruments on meter. A nil meter uses the
// global meter provider.
func NewOTelObserver(meter metric.Meter) (*OTelObserver, error) {
	if meter == nil {
		meter = otel.Meter("datasetlock")
	}

	var (
		o   OTelObserver
		err error
	)
	o.acquisitions, err = meter.Int64Counter(
		"datasetlock.acquisitions",
		metric.WithDescription("Outermost lock acquisitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("create acquisitions counter: %w", err)
	}

	o.contentions, err = meter.Int64Counter(
		"datasetlock.contentions",
		metric.WithDescription("Acquisitions that had to wait for another goroutine"),
	)
	if err != nil {
		return nil, fmt.Errorf("create contentions counter: %w", err)
	}

	o.waitSeconds, err = meter.Float64Histogram(
		"datasetlock.wait.duration",
		metric.WithDescription("Time spent waiting for a lock"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create wait histogram: %w", err)
	}

	o.holdSeconds, err = meter.Float64Histogram(
		"datasetlock.hold.duration",
		metric.WithDescription("Time a lock was held, outermost acquisition to release"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create hold histogram: %w", err)
	}

	o.held, err = meter.Int64Gauge(
		"datasetlock.held",
		metric.WithDescription("Current reader count or writer depth"),
	)
	if err != nil {
		return nil, fmt.Errorf("create held gauge: %w", err)
	}

	return &o, nil
}

func (o *OTelObserver) Acquired(ev datasetlock.Event) {
	ctx := context.Background()
	o.recordHeld(ctx, ev)
	if !ev.Outermost() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("lock", ev.Lock),
		attribute.String("type", ev.Type.String()),
	)
	o.acquisitions.Add(ctx, 1, attrs)
	if ev.Contended {
		o.contentions.Add(ctx, 1, attrs)
	}
	o.waitSeconds.Record(ctx, ev.Wait.Seconds(), attrs)
}

func (o *OTelObserver) Released(ev datasetlock.Event) {
	ctx := context.Background()
	o.recordHeld(ctx, ev)
	if !ev.Outermost() {
		return
	}
	o.holdSeconds.Record(ctx, ev.Held.Seconds(), metric.WithAttributes(
		attribute.String("lock", ev.Lock),
		attribute.String("type", ev.Type.String()),
	))
}

func (o *OTelObserver) recordHeld(ctx context.Context, ev datasetlock.Event) {
	o.held.Record(ctx, int64(ev.Readers), metric.WithAttributes(
		attribute.String("lock", ev.Lock),
		attribute.String("type", datasetlock.ReadLock.String()),
	))
	o.held.Record(ctx, int64(ev.Writers), metric.WithAttributes(
		attribute.String("lock", ev.Lock),
		attribute.String("type", datasetlock.WriteLock.String()),
	))
}
