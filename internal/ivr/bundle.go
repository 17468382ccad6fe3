package ivr

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed bundles.yaml
var defaultCatalogYAML []byte

// Templates holds the localized prompts of one language. Placeholders use
// {name} syntax: {digit} in DigitPressed, {code} in TransferCode, {language}
// in LanguageConfirmed.
type Templates struct {
	LanguageConfirmed  string `yaml:"language_confirmed"`
	MainMenu           string `yaml:"main_menu"`
	InvalidLanguage    string `yaml:"invalid_language"`
	UnrecognizedOption string `yaml:"unrecognized_option"`
	DigitPressed       string `yaml:"digit_pressed"`
	ConnectingAgent    string `yaml:"connecting_agent"`
	AgentTransferred   string `yaml:"agent_transferred"`
	TransferCode       string `yaml:"transfer_code"`
	Goodbye            string `yaml:"goodbye"`
	CallEnded          string `yaml:"call_ended"`
	TroubleProcessing  string `yaml:"trouble_processing"`
	AnythingElse       string `yaml:"anything_else"`
}

// PhraseSets are the free-text keyword lists used for intent detection.
type PhraseSets struct {
	Goodbye []string `yaml:"goodbye"`
	Agent   []string `yaml:"agent"`
	Website []string `yaml:"website"`
}

// Bundle is everything the controller says or listens for in one language.
type Bundle struct {
	Name             string     `yaml:"name"`
	Locale           string     `yaml:"locale"`
	VoiceID          string     `yaml:"voice_id"`
	Messages         Templates  `yaml:"messages"`
	Phrases          PhraseSets `yaml:"phrases"`
	LanguageKeywords []string   `yaml:"language_keywords"`
}

// Catalog maps language codes to bundles plus the language-neutral greeting.
type Catalog struct {
	DefaultLanguage Language             `yaml:"default_language"`
	Greeting        string               `yaml:"greeting"`
	Digits          map[string]Language  `yaml:"digits"`
	Languages       map[Language]*Bundle `yaml:"languages"`
}

// DefaultCatalog returns the embedded English/Spanish/Haitian Creole catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog from a YAML file. An empty path yields the default.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports the first structural problem in the catalog.
func (c *Catalog) Validate() error {
	if len(c.Languages) == 0 {
		return fmt.Errorf("catalog has no languages")
	}
	if _, ok := c.Languages[c.DefaultLanguage]; !ok {
		return fmt.Errorf("default language %q is not defined", c.DefaultLanguage)
	}
	if strings.TrimSpace(c.Greeting) == "" {
		return fmt.Errorf("catalog greeting is empty")
	}
	if len(c.Digits) == 0 {
		return fmt.Errorf("catalog has no language digits")
	}
	for digit, lang := range c.Digits {
		if !isDigit(digit) {
			return fmt.Errorf("language digit %q is not a keypad digit", digit)
		}
		if digit == "0" || digit == "9" {
			return fmt.Errorf("language digit %q is reserved for hang up", digit)
		}
		if _, ok := c.Languages[lang]; !ok {
			return fmt.Errorf("digit %q maps to undefined language %q", digit, lang)
		}
	}
	for lang, b := range c.Languages {
		if b == nil {
			return fmt.Errorf("language %q has no bundle", lang)
		}
		if missing := b.Messages.missing(); len(missing) > 0 {
			return fmt.Errorf("language %q is missing messages: %s", lang, strings.Join(missing, ", "))
		}
	}
	return nil
}

// Bundle returns the bundle for lang, falling back to the default language.
func (c *Catalog) Bundle(lang Language) *Bundle {
	if b, ok := c.Languages[lang]; ok {
		return b
	}
	return c.Languages[c.DefaultLanguage]
}

// LanguageForDigit maps a keypad digit to a language.
func (c *Catalog) LanguageForDigit(digit string) (Language, bool) {
	lang, ok := c.Digits[digit]
	return lang, ok
}

// LanguageForText finds a language whose keywords appear in text.
func (c *Catalog) LanguageForText(text string) (Language, bool) {
	norm := normalize(text)
	codes := make([]string, 0, len(c.Languages))
	for lang := range c.Languages {
		codes = append(codes, string(lang))
	}
	sort.Strings(codes)
	for _, code := range codes {
		if containsAny(norm, c.Languages[Language(code)].LanguageKeywords) {
			return Language(code), true
		}
	}
	return "", false
}

func (t Templates) missing() []string {
	fields := []struct {
		name  string
		value string
	}{
		{"language_confirmed", t.LanguageConfirmed},
		{"main_menu", t.MainMenu},
		{"invalid_language", t.InvalidLanguage},
		{"unrecognized_option", t.UnrecognizedOption},
		{"digit_pressed", t.DigitPressed},
		{"connecting_agent", t.ConnectingAgent},
		{"agent_transferred", t.AgentTransferred},
		{"transfer_code", t.TransferCode},
		{"goodbye", t.Goodbye},
		{"call_ended", t.CallEnded},
		{"trouble_processing", t.TroubleProcessing},
		{"anything_else", t.AnythingElse},
	}
	var out []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// Render substitutes {key} placeholders.
func Render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
