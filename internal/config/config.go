package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the IVR demo service.
type Config struct {
	BindAddr              string
	ShutdownTimeout       time.Duration
	CallInactivityTimeout time.Duration
	MetricsNamespace      string
	AllowAnyOrigin        bool

	LogLevel  string
	LogFormat string

	BundlePath         string
	GreetingDelay      time.Duration
	MenuDelay          time.Duration
	AgentTransferDelay time.Duration
	BackendTimeout     time.Duration
	TokenTTL           time.Duration
	SpeechQueueSize    int

	// BackendURL points calls at a remote backend API. Empty means the
	// in-process handoff service.
	BackendURL string

	BrainMode    string
	BrainHTTPURL string

	VoiceProvider          string
	ElevenLabsAPIKey       string
	ElevenLabsWSBaseURL    string
	ElevenLabsVoiceID      string
	ElevenLabsModelID      string
	ElevenLabsOutputFormat string

	DatabaseURL string

	KafkaEnabled         bool
	KafkaBrokers         []string
	KafkaTopicTranscript string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:               envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:       envOrDefault("APP_METRICS_NAMESPACE", "ivrdemo"),
		LogLevel:               envOrDefault("LOG_LEVEL", "info"),
		LogFormat:              envOrDefault("LOG_FORMAT", "json"),
		BundlePath:             stringsTrimSpace("IVR_BUNDLE_PATH"),
		BackendURL:             stringsTrimSpace("BACKEND_URL"),
		BrainMode:              envOrDefault("BRAIN_MODE", "auto"),
		BrainHTTPURL:           stringsTrimSpace("BRAIN_HTTP_URL"),
		VoiceProvider:          envOrDefault("VOICE_PROVIDER", "auto"),
		ElevenLabsAPIKey:       stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL:    envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsVoiceID:      envOrDefault("ELEVENLABS_TTS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModelID:      envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsOutputFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "ulaw_8000"),
		DatabaseURL:            stringsTrimSpace("DATABASE_URL"),
		KafkaBrokers:           listFromEnv("KAFKA_BROKERS"),
		KafkaTopicTranscript:   envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "ivr.transcript.v1"),
		ShutdownTimeout:        15 * time.Second,
		CallInactivityTimeout:  10 * time.Minute,
		GreetingDelay:          500 * time.Millisecond,
		MenuDelay:              time.Second,
		AgentTransferDelay:     3 * time.Second,
		BackendTimeout:         15 * time.Second,
		TokenTTL:               24 * time.Hour,
		SpeechQueueSize:        16,
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"APP_CALL_INACTIVITY_TIMEOUT", &cfg.CallInactivityTimeout},
		{"IVR_GREETING_DELAY", &cfg.GreetingDelay},
		{"IVR_MENU_DELAY", &cfg.MenuDelay},
		{"IVR_AGENT_TRANSFER_DELAY", &cfg.AgentTransferDelay},
		{"IVR_BACKEND_TIMEOUT", &cfg.BackendTimeout},
		{"IVR_TOKEN_TTL", &cfg.TokenTTL},
	}
	for _, d := range durations {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}
	if cfg.SpeechQueueSize, err = intFromEnv("IVR_SPEECH_QUEUE_SIZE", cfg.SpeechQueueSize); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", false); err != nil {
		return Config{}, err
	}
	if cfg.KafkaEnabled, err = boolFromEnv("KAFKA_ENABLED", false); err != nil {
		return Config{}, err
	}

	if cfg.CallInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_CALL_INACTIVITY_TIMEOUT must be at least 5s")
	}
	for _, d := range durations[2:5] {
		if *d.dst <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", d.key)
		}
	}
	if cfg.BackendTimeout <= 0 {
		return Config{}, fmt.Errorf("IVR_BACKEND_TIMEOUT must be positive")
	}
	if cfg.TokenTTL < time.Minute {
		return Config{}, fmt.Errorf("IVR_TOKEN_TTL must be at least 1m")
	}
	if cfg.SpeechQueueSize <= 0 {
		return Config{}, fmt.Errorf("IVR_SPEECH_QUEUE_SIZE must be positive")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
