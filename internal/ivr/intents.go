package ivr

import (
	"strings"
	"unicode"
)

// Intent is the transition selected for a free-text turn.
type Intent string

const (
	IntentGoodbye Intent = "goodbye"
	IntentAgent   Intent = "agent"
	IntentWebsite Intent = "website"
	IntentChat    Intent = "chat"
)

// IntentRule pairs a predicate with the transition it triggers. Rules are
// evaluated in slice order and the first match wins.
type IntentRule struct {
	Intent Intent
	Match  func(text string, phrases []PhraseSets) bool
}

// DefaultIntentRules matches goodbye, then agent, then website phrases.
func DefaultIntentRules() []IntentRule {
	return []IntentRule{
		{Intent: IntentGoodbye, Match: phraseMatcher(func(p PhraseSets) []string { return p.Goodbye })},
		{Intent: IntentAgent, Match: phraseMatcher(func(p PhraseSets) []string { return p.Agent })},
		{Intent: IntentWebsite, Match: phraseMatcher(func(p PhraseSets) []string { return p.Website })},
	}
}

// DetectIntent returns the first matching rule's intent, or IntentChat.
func DetectIntent(rules []IntentRule, text string, phrases []PhraseSets) Intent {
	norm := normalize(text)
	for _, r := range rules {
		if r.Match != nil && r.Match(norm, phrases) {
			return r.Intent
		}
	}
	return IntentChat
}

func phraseMatcher(pick func(PhraseSets) []string) func(string, []PhraseSets) bool {
	return func(text string, sets []PhraseSets) bool {
		for _, set := range sets {
			if containsAny(text, pick(set)) {
				return true
			}
		}
		return false
	}
}

// containsAny reports whether any phrase occurs in text as a run of whole
// words. text must already be normalized.
func containsAny(text string, phrases []string) bool {
	padded := " " + text + " "
	for _, p := range phrases {
		p = normalize(p)
		if p != "" && strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// normalize lowercases, drops punctuation and collapses whitespace, leaving
// words separated by single spaces. Accents and inner apostrophes are kept.
func normalize(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
	for i, w := range words {
		words[i] = strings.Trim(w, "'’")
	}
	return strings.Join(words, " ")
}

func isDigit(d string) bool {
	if len(d) != 1 {
		return false
	}
	c := d[0]
	return (c >= '0' && c <= '9') || c == '*' || c == '#'
}
