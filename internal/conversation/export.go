package conversation

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Exporter writes a transcript in one format.
type Exporter interface {
	Export(w io.Writer, turns []Turn) error
	Extension() string
}

// ExporterFor picks an exporter from a file name or bare extension.
func ExporterFor(name string) (Exporter, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		ext = strings.ToLower(name)
	}
	switch ext {
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", ext)
	}
}

// JSONExporter exports turns as an indented JSON array.
type JSONExporter struct{}

// Export implements Exporter.
func (e *JSONExporter) Export(w io.Writer, turns []Turn) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if turns == nil {
		turns = []Turn{}
	}
	return enc.Encode(turns)
}

// Extension implements Exporter.
func (e *JSONExporter) Extension() string {
	return "json"
}

// YAMLExporter exports turns as a YAML sequence.
type YAMLExporter struct{}

// Export implements Exporter.
func (e *YAMLExporter) Export(w io.Writer, turns []Turn) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	if turns == nil {
		turns = []Turn{}
	}
	return enc.Encode(turns)
}

// Extension implements Exporter.
func (e *YAMLExporter) Extension() string {
	return "yaml"
}

// MarkdownExporter exports turns as a readable transcript.
type MarkdownExporter struct{}

// Export implements Exporter.
func (e *MarkdownExporter) Export(w io.Writer, turns []Turn) error {
	if _, err := fmt.Fprintf(w, "# Conversation\n\n**Turns:** %d\n\n", len(turns)); err != nil {
		return err
	}
	for i, turn := range turns {
		suffix := ""
		switch {
		case turn.Open():
			suffix = " (in progress)"
		case turn.CompletedAt != nil:
			suffix = fmt.Sprintf(" (%s)", turn.CompletedAt.Format(time.RFC3339))
		}
		if _, err := fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", turn.Role, suffix, turn.Content); err != nil {
			return err
		}
		if i < len(turns)-1 {
			if _, err := fmt.Fprint(w, "---\n\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

// Extension implements Exporter.
func (e *MarkdownExporter) Extension() string {
	return "md"
}
