package httpapi

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aldrinstellus/ivrdemo/internal/audio"
	"github.com/aldrinstellus/ivrdemo/internal/ivr"
)

type languageVoice struct {
	Language ivr.Language `json:"language"`
	Name     string       `json:"name"`
	Locale   string       `json:"locale"`
	Digit    string       `json:"digit,omitempty"`
	VoiceID  string       `json:"voice_id"`
}

type listVoicesResponse struct {
	Provider        string          `json:"provider"`
	DefaultLanguage ivr.Language    `json:"default_language"`
	DefaultVoiceID  string          `json:"default_voice_id"`
	Languages       []languageVoice `json:"languages"`
}

const toneDuration = 180 * time.Millisecond

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	resp := listVoicesResponse{
		Provider:       s.status.VoiceProvider,
		DefaultVoiceID: s.status.DefaultVoiceID,
		Languages:      []languageVoice{},
	}
	if s.catalog == nil {
		respondJSON(w, http.StatusOK, resp)
		return
	}
	resp.DefaultLanguage = s.catalog.DefaultLanguage

	digits := make(map[ivr.Language]string, len(s.catalog.Digits))
	for d, lang := range s.catalog.Digits {
		digits[lang] = d
	}
	for lang, b := range s.catalog.Languages {
		voiceID := strings.TrimSpace(b.VoiceID)
		if voiceID == "" {
			voiceID = s.status.DefaultVoiceID
		}
		resp.Languages = append(resp.Languages, languageVoice{
			Language: lang,
			Name:     b.Name,
			Locale:   b.Locale,
			Digit:    digits[lang],
			VoiceID:  voiceID,
		})
	}
	sort.Slice(resp.Languages, func(i, j int) bool {
		if resp.Languages[i].Digit != resp.Languages[j].Digit {
			return resp.Languages[i].Digit < resp.Languages[j].Digit
		}
		return resp.Languages[i].Language < resp.Languages[j].Language
	})
	respondJSON(w, http.StatusOK, resp)
}

// handleToneWAV renders the keypad tone for one key as a WAV file.
func (s *Server) handleToneWAV(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSuffix(chi.URLParam(r, "key"), ".wav")
	if key == "star" {
		key = "*"
	} else if key == "hash" {
		key = "#"
	}
	pcm, err := audio.Tone(key, toneDuration, audio.DefaultSampleRate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_digit", err.Error())
		return
	}
	wav, err := audio.EncodeWAV(pcm, audio.DefaultSampleRate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "tone_render_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}
