package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speechURLPattern          = regexp.MustCompile(`https?://\S+`)
	speechMarkdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	// Transfer codes and reference numbers: 4-8 uppercase letters/digits with at least one digit.
	speechCodePattern = regexp.MustCompile(`\b[A-Z0-9]{4,8}\b`)
)

const (
	chunkMinChars  = 24
	chunkMaxChars  = 120
	chunkCutWindow = 40
)

// speechText turns transcript text into something a synthesizer reads well.
func speechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = speechMarkdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = speechURLPattern.ReplaceAllString(raw, " ")
	raw = speechCodePattern.ReplaceAllStringFunc(raw, spellOut)
	raw = strings.NewReplacer("*", " ", "_", " ", "`", " ", "|", " ", "~", " ", "<", " ", ">", " ").Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sk):
			continue
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// spellOut separates the characters of a code so each one is read aloud.
func spellOut(code string) string {
	hasDigit := strings.IndexFunc(code, unicode.IsDigit) >= 0
	hasLetter := strings.IndexFunc(code, unicode.IsLetter) >= 0
	if !hasDigit || !hasLetter {
		return code
	}
	return strings.Join(strings.Split(code, ""), " ")
}

// speechChunks splits text at sentence ends, then commas, then whitespace,
// so long prompts start playing before the whole text is synthesized.
func speechChunks(text string) []string {
	var out []string
	for rest := strings.TrimSpace(text); rest != ""; {
		if len(rest) <= chunkMaxChars {
			out = append(out, rest)
			break
		}
		cut := boundary(rest, ".!?;:", chunkMinChars, chunkMaxChars)
		if cut < 0 {
			cut = boundary(rest, ",", chunkMinChars, chunkMaxChars)
		}
		if cut < 0 {
			cut = whitespaceCut(rest, chunkMaxChars-chunkCutWindow, chunkMaxChars)
		}
		out = append(out, strings.TrimSpace(rest[:cut+1]))
		rest = strings.TrimSpace(rest[cut+1:])
	}
	return out
}

func boundary(s, marks string, from, to int) int {
	if to > len(s) {
		to = len(s)
	}
	for i := from; i < to; i++ {
		if strings.IndexByte(marks, s[i]) >= 0 && (i+1 == len(s) || s[i+1] == ' ') {
			return i
		}
	}
	return -1
}

func whitespaceCut(s string, from, to int) int {
	for i := to - 1; i >= from; i-- {
		if s[i] == ' ' {
			return i
		}
	}
	return to - 1
}
