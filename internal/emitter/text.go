package emitter

import (
	"context"
	"io"

	"github.com/yairfalse/tether/internal/report"
	"github.com/yairfalse/tether/pkg/resource"
)

// TextEmitter writes the human-readable report as entries arrive.
type TextEmitter struct {
	w        io.Writer
	renderer *report.Renderer
	summary  bool
	entries  []resource.Entry
}

// NewTextEmitter creates a text emitter. With summary on, a table of all
// entries is written on Close.
func NewTextEmitter(w io.Writer, useColor, summary bool) *TextEmitter {
	return &TextEmitter{
		w:        w,
		renderer: report.NewRenderer(useColor),
		summary:  summary,
	}
}

// Emit renders one entry.
func (e *TextEmitter) Emit(_ context.Context, entry resource.Entry) error {
	if e.summary {
		e.entries = append(e.entries, entry)
	}
	return e.renderer.Render(e.w, entry)
}

// Close writes the summary table when enabled.
func (e *TextEmitter) Close() error {
	if e.summary && len(e.entries) > 0 {
		e.renderer.RenderSummary(e.w, e.entries)
	}
	return nil
}
