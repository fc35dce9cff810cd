package report

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/tether/pkg/resource"
)

type yamlStep struct {
	Status resource.Status `yaml:"status"`
	Error  string          `yaml:"error,omitempty"`
}

type yamlEntry struct {
	Instance    resource.Instance              `yaml:"instance"`
	Attachments *resource.Attachments          `yaml:"attachments,omitempty"`
	Steps       map[resource.Category]yamlStep `yaml:"steps,omitempty"`
	Error       string                         `yaml:"error,omitempty"`
}

// YAMLWriter writes one YAML document per entry.
type YAMLWriter struct {
	enc *yaml.Encoder
}

// NewYAMLWriter creates a writer emitting to w.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLWriter{enc: enc}
}

// Write encodes one entry as a YAML document.
func (y *YAMLWriter) Write(entry resource.Entry) error {
	doc := yamlEntry{Instance: entry.Instance}
	if entry.Err != nil {
		doc.Error = entry.Err.Error()
	}
	if entry.Attachments != nil {
		doc.Attachments = entry.Attachments
		doc.Steps = make(map[resource.Category]yamlStep, len(entry.Attachments.Steps))
		for c, s := range entry.Attachments.Steps {
			step := yamlStep{Status: s.Status}
			if s.Err != nil {
				step.Error = s.Err.Error()
			}
			doc.Steps[c] = step
		}
	}

	if err := y.enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return nil
}

// Close flushes the encoder.
func (y *YAMLWriter) Close() error {
	return y.enc.Close()
}
