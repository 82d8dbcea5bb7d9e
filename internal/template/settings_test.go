package template

import (
	"regexp"
	"strings"
	"testing"
)

func TestSettingsPage_EscapesValues(t *testing.T) {
	page := NewSettingsPage()

	html, err := page.Generate(SettingsData{
		RelayURL: `https://relay.example/events?a=1&b="><script>alert(1)</script>`,
		Status:   "Not Configured",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("relay URL was not escaped")
	}
	if !strings.Contains(html, "Not Configured") {
		t.Error("status missing from page")
	}
	if !regexp.MustCompile(`const debug =\s*false\s*;`).MatchString(html) {
		t.Error("debug flag not rendered as a JS literal")
	}
}
