package emitter

import (
	"context"
	"io"

	"github.com/yairfalse/tether/internal/report"
	"github.com/yairfalse/tether/pkg/resource"
)

// YAMLEmitter writes one YAML document per entry.
type YAMLEmitter struct {
	w *report.YAMLWriter
}

// NewYAMLEmitter creates a YAML emitter writing to w.
func NewYAMLEmitter(w io.Writer) *YAMLEmitter {
	return &YAMLEmitter{w: report.NewYAMLWriter(w)}
}

// Emit encodes one entry.
func (e *YAMLEmitter) Emit(_ context.Context, entry resource.Entry) error {
	return e.w.Write(entry)
}

// Close flushes the encoder.
func (e *YAMLEmitter) Close() error {
	return e.w.Close()
}
