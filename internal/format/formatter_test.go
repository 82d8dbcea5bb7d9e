package format

import (
	"strings"
	"testing"

	"github.com/kazuph/browser-observer/internal/event"
)

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"json": FormatJSON,
		"JSON": FormatJSON,
		"yaml": FormatYAML,
		"yml":  FormatYAML,
	}
	for input, want := range cases {
		got, err := ParseFormat(input)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestFormatTabs(t *testing.T) {
	tabs := []event.Tab{{ID: "A1", Title: "Example", URL: "https://example.com"}}

	out, err := NewFormatter(FormatJSON).Format(tabs)
	if err != nil {
		t.Fatalf("Format JSON: %v", err)
	}
	if !strings.Contains(out, `"url": "https://example.com"`) {
		t.Errorf("JSON output = %s", out)
	}

	out, err = NewFormatter(FormatYAML).Format(tabs)
	if err != nil {
		t.Fatalf("Format YAML: %v", err)
	}
	if !strings.Contains(out, "- id: A1") || !strings.Contains(out, "url: https://example.com") {
		t.Errorf("YAML output = %s", out)
	}
}

func TestMimeType(t *testing.T) {
	if got := DefaultFormatter().MimeType(); got != "application/json" {
		t.Errorf("MimeType = %s", got)
	}
	if got := NewFormatter(FormatYAML).MimeType(); got != "application/x-yaml" {
		t.Errorf("MimeType = %s", got)
	}
	if _, err := NewFormatter("xml").Format(1); err == nil {
		t.Error("unsupported format should fail")
	}
}
