package emitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/tether/pkg/resource"
)

// MetricsEmitter records correlation results as OTEL metrics.
type MetricsEmitter struct {
	meter metric.Meter

	attachmentInfo metric.Int64ObservableGauge
	attachedTotal  metric.Int64Counter
	instancesTotal metric.Int64Counter

	// State for observable gauge
	mu      sync.RWMutex
	entries map[string]resource.Entry
}

// NewMetricsEmitter creates a metrics emitter on the given meter.
func NewMetricsEmitter(meter metric.Meter) (*MetricsEmitter, error) {
	e := &MetricsEmitter{
		meter:   meter,
		entries: make(map[string]resource.Entry),
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *MetricsEmitter) initMetrics() error {
	var err error

	e.attachmentInfo, err = e.meter.Int64ObservableGauge(
		"tether_instance_attachments",
		metric.WithDescription("Attached resources per instance and category"),
		metric.WithInt64Callback(e.observeAttachments),
	)
	if err != nil {
		return fmt.Errorf("create instance_attachments gauge: %w", err)
	}

	e.attachedTotal, err = e.meter.Int64Counter(
		"tether_attached_resources_total",
		metric.WithDescription("Total attached resources found"),
	)
	if err != nil {
		return fmt.Errorf("create attached_resources counter: %w", err)
	}

	e.instancesTotal, err = e.meter.Int64Counter(
		"tether_instances_total",
		metric.WithDescription("Total instances correlated"),
	)
	if err != nil {
		return fmt.Errorf("create instances counter: %w", err)
	}

	return nil
}

// Emit records the entry's attachment counts.
func (e *MetricsEmitter) Emit(ctx context.Context, entry resource.Entry) error {
	e.instancesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", entry.Instance.State),
		attribute.String("outcome", outcome(entry)),
	))

	if entry.Attachments != nil {
		total := 0
		for _, c := range resource.Categories {
			n := entry.Attachments.Count(c)
			total += n
			if n > 0 {
				e.attachedTotal.Add(ctx, int64(n), metric.WithAttributes(
					attribute.String("category", string(c)),
				))
			}
		}

		log.Debug().Ctx(ctx).
			Str("instance_id", entry.Instance.ID).
			Int("attached", total).
			Bool("partial", entry.Attachments.Partial()).
			Msg("instance correlated")
	}

	e.mu.Lock()
	e.entries[entry.Instance.ID] = entry
	e.mu.Unlock()

	return nil
}

func outcome(entry resource.Entry) string {
	switch {
	case entry.Err != nil:
		return "error"
	case entry.Attachments != nil && entry.Attachments.Partial():
		return "partial"
	default:
		return "complete"
	}
}

// observeAttachments is the callback for the instance_attachments gauge.
func (e *MetricsEmitter) observeAttachments(_ context.Context, o metric.Int64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for id, entry := range e.entries {
		if entry.Attachments == nil {
			continue
		}
		for _, c := range resource.Categories {
			if entry.Attachments.Steps[c].Status == resource.StatusFailed {
				continue
			}
			o.Observe(int64(entry.Attachments.Count(c)), metric.WithAttributes(
				attribute.String("instance_id", id),
				attribute.String("category", string(c)),
			))
		}
	}

	return nil
}

// Close is a no-op for the metrics emitter.
func (e *MetricsEmitter) Close() error {
	return nil
}
