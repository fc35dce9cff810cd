// Package emitter defines the output interface for Tether.
package emitter

import (
	"context"
	"errors"

	"github.com/yairfalse/tether/pkg/resource"
)

// Emitter outputs correlated instances to a backend.
type Emitter interface {
	// Emit sends one instance and its attachments to the backend.
	Emit(ctx context.Context, entry resource.Entry) error

	// Close flushes and cleans up.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, entry resource.Entry) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every emitter, even after one fails, and joins their errors.
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
