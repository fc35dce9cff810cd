// Package inventory drives one discovery run: list instances, correlate
// each one, and hand the result to an emitter.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/tether/internal/emitter"
	"github.com/yairfalse/tether/internal/filter"
	"github.com/yairfalse/tether/internal/plugin"
	"github.com/yairfalse/tether/pkg/resource"
)

// ErrPartial is returned when the run completed but at least one instance
// or category could not be resolved.
var ErrPartial = errors.New("inventory incomplete")

var tracer = otel.Tracer("github.com/yairfalse/tether/internal/inventory")

// Summary describes a finished run.
type Summary struct {
	Provider  string
	Listed    int
	Instances int
	Partial   int
	Failed    int
	Duration  time.Duration
}

// Run lists every instance the plugin can see and correlates those passing
// f one at a time, in listing order. A nil f admits every instance. A lister
// failure aborts the run. A failure on one instance is recorded in its entry
// and the run moves on. Cancellation stops the run between instances.
func Run(ctx context.Context, p plugin.Plugin, f *filter.Filter, emit emitter.Emitter) (summary Summary, err error) {
	ctx, span := tracer.Start(ctx, "inventory.Run", trace.WithAttributes(
		attribute.String("plugin", p.Name()),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("instances.listed", summary.Listed),
			attribute.Int("instances.correlated", summary.Instances),
			attribute.Int("instances.partial", summary.Partial),
			attribute.Int("instances.failed", summary.Failed),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	summary = Summary{Provider: p.Name()}
	logger := log.With().Str("plugin", p.Name()).Logger()

	instances, err := p.ListInstances(ctx)
	if err != nil {
		return summary, fmt.Errorf("list instances: %w", err)
	}
	summary.Listed = len(instances)
	instances = f.Instances(instances)
	logger.Info().Ctx(ctx).
		Int("listed", summary.Listed).
		Int("selected", len(instances)).
		Msg("starting inventory")

	for _, inst := range instances {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		entry := correlate(ctx, p, inst)
		if entry.Err != nil && ctx.Err() != nil {
			return summary, ctx.Err()
		}

		summary.Instances++
		switch {
		case entry.Err != nil:
			summary.Failed++
		case entry.Attachments.Partial():
			summary.Partial++
		}

		if err := emit.Emit(ctx, entry); err != nil {
			return summary, fmt.Errorf("emit %s: %w", inst.ID, err)
		}
	}

	summary.Duration = time.Since(start)
	logger.Info().Ctx(ctx).
		Int("instances", summary.Instances).
		Int("partial", summary.Partial).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("inventory complete")

	if summary.Partial > 0 || summary.Failed > 0 {
		return summary, ErrPartial
	}
	return summary, nil
}

func correlate(ctx context.Context, p plugin.Plugin, inst resource.Instance) resource.Entry {
	entry := resource.Entry{Instance: inst}

	attachments, err := p.Correlate(ctx, inst.ID)
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Str("instance_id", inst.ID).Msg("correlation failed")
		entry.Err = err
		return entry
	}

	if attachments.Partial() {
		log.Warn().Ctx(ctx).
			Err(attachments.Err()).
			Str("instance_id", inst.ID).
			Strs("failed", categoryNames(attachments.Failed())).
			Msg("some attachments could not be resolved")
	}
	entry.Attachments = attachments
	return entry
}

func categoryNames(cs []resource.Category) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = string(c)
	}
	return names
}
