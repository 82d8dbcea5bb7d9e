// Package format renders command output as JSON or YAML.
package format

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Format represents the output format type
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formatter renders values (tabs, relay configuration, delivery status) in
// one output format.
type Formatter struct {
	format Format
}

// NewFormatter creates a new formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
	}
}

// Format renders v in the formatter's format
func (f *Formatter) Format(v any) (string, error) {
	switch f.format {
	case FormatJSON:
		return formatJSON(v)
	case FormatYAML:
		return formatYAML(v)
	default:
		return "", fmt.Errorf("unsupported format: %s", f.format)
	}
}

func formatJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return string(data), nil
}

// ParseFormat parses a format string and returns the Format enum
func ParseFormat(formatStr string) (Format, error) {
	switch formatStr {
	case "json", "JSON":
		return FormatJSON, nil
	case "yaml", "YAML", "yml", "YML":
		return FormatYAML, nil
	default:
		return FormatJSON, fmt.Errorf("unsupported format: %s (supported: json, yaml)", formatStr)
	}
}

// MimeType returns the MIME type for the format
func (f *Formatter) MimeType() string {
	switch f.format {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/x-yaml"
	default:
		return "text/plain"
	}
}

// DefaultFormatter returns a JSON formatter
func DefaultFormatter() *Formatter {
	return NewFormatter(FormatJSON)
}
