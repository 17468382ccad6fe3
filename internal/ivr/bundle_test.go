package ivr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogCoversThreeLanguages(t *testing.T) {
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}
	for digit, want := range map[string]Language{"1": LanguageEnglish, "2": LanguageSpanish, "3": LanguageHaitianCreole} {
		got, ok := c.LanguageForDigit(digit)
		if !ok || got != want {
			t.Fatalf("LanguageForDigit(%q) = %q, %v, want %q", digit, got, ok, want)
		}
	}
	if _, ok := c.LanguageForDigit("4"); ok {
		t.Fatalf("LanguageForDigit(4) ok = true, want false")
	}
	if c.Bundle("xx") != c.Bundle(LanguageEnglish) {
		t.Fatalf("Bundle() for unknown language did not fall back to default")
	}
}

func TestParseCatalogRejectsMissingMessages(t *testing.T) {
	raw := `
default_language: en
greeting: hi
digits:
  "1": en
languages:
  en:
    name: English
    messages:
      main_menu: menu
`
	_, err := ParseCatalog([]byte(raw))
	if err == nil {
		t.Fatalf("ParseCatalog() error = nil, want missing messages")
	}
	if !strings.Contains(err.Error(), "goodbye") {
		t.Fatalf("error = %v, want it to name the missing goodbye template", err)
	}
}

func TestParseCatalogRejectsReservedDigit(t *testing.T) {
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}
	c.Digits["9"] = LanguageEnglish
	if err := c.Validate(); err == nil {
		t.Fatalf("Validate() error = nil, want reserved digit error")
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundles.yaml")
	if err := os.WriteFile(path, defaultCatalogYAML, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if c.DefaultLanguage != LanguageEnglish {
		t.Fatalf("DefaultLanguage = %q, want en", c.DefaultLanguage)
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("LoadCatalog(missing) error = nil")
	}
}

func TestRender(t *testing.T) {
	got := Render("code {code} for {language}", map[string]string{"code": "AB12", "language": "English"})
	if got != "code AB12 for English" {
		t.Fatalf("Render() = %q", got)
	}
	if got := Render("plain", nil); got != "plain" {
		t.Fatalf("Render(nil vars) = %q", got)
	}
}
