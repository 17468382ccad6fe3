package ivr

import "testing"

func TestDetectIntent(t *testing.T) {
	phrases := []PhraseSets{{
		Goodbye: []string{"goodbye", "bye"},
		Agent:   []string{"agent", "human"},
		Website: []string{"website", "transfer"},
	}}
	rules := DefaultIntentRules()

	tests := []struct {
		text string
		want Intent
	}{
		{"Goodbye!", IntentGoodbye},
		{"transfer me to an agent", IntentAgent},
		{"bye, no agent needed", IntentGoodbye},
		{"can I use the   WEBSITE", IntentWebsite},
		{"when does the library open", IntentChat},
		{"I'm doing well, that's all", IntentGoodbye},
		{"konbyen lajan", IntentChat},
		{"transferencia bancaria", IntentChat},
		{"an agentless kiosk", IntentChat},
	}
	for _, tc := range tests {
		if got := DetectIntent(rules, tc.text, phrases); got != tc.want {
			t.Fatalf("DetectIntent(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestCustomRuleTakesPriority(t *testing.T) {
	rules := append([]IntentRule{{
		Intent: IntentWebsite,
		Match: func(text string, _ []PhraseSets) bool {
			return text == "zero"
		},
	}}, DefaultIntentRules()...)
	if got := DetectIntent(rules, "ZERO", nil); got != IntentWebsite {
		t.Fatalf("DetectIntent() = %q, want %q", got, IntentWebsite)
	}
}
