package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.GreetingDelay != 500*time.Millisecond || cfg.MenuDelay != time.Second || cfg.AgentTransferDelay != 3*time.Second {
		t.Fatalf("delays = %v/%v/%v", cfg.GreetingDelay, cfg.MenuDelay, cfg.AgentTransferDelay)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("TokenTTL = %v, want 24h", cfg.TokenTTL)
	}
	if cfg.BackendURL != "" || cfg.KafkaEnabled || len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("unexpected integrations enabled: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("IVR_MENU_DELAY", "250ms")
	t.Setenv("BACKEND_URL", " http://localhost:3000/api ")
	t.Setenv("KAFKA_ENABLED", "yes")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.MenuDelay != 250*time.Millisecond {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.BackendURL != "http://localhost:3000/api" {
		t.Fatalf("BackendURL = %q", cfg.BackendURL)
	}
	if !cfg.KafkaEnabled || strings.Join(cfg.KafkaBrokers, "|") != "kafka-1:9092|kafka-2:9092" {
		t.Fatalf("kafka = %v %q", cfg.KafkaEnabled, cfg.KafkaBrokers)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"IVR_GREETING_DELAY", "soon"},
		{"IVR_MENU_DELAY", "0s"},
		{"APP_CALL_INACTIVITY_TIMEOUT", "1s"},
		{"IVR_TOKEN_TTL", "30s"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe"},
		{"IVR_SPEECH_QUEUE_SIZE", "0"},
		{"KAFKA_ENABLED", "true"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q error = nil", tc.key, tc.value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_CALL_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"IVR_BUNDLE_PATH",
		"IVR_GREETING_DELAY",
		"IVR_MENU_DELAY",
		"IVR_AGENT_TRANSFER_DELAY",
		"IVR_BACKEND_TIMEOUT",
		"IVR_TOKEN_TTL",
		"IVR_SPEECH_QUEUE_SIZE",
		"BACKEND_URL",
		"BRAIN_MODE",
		"BRAIN_HTTP_URL",
		"VOICE_PROVIDER",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_WS_BASE_URL",
		"ELEVENLABS_TTS_VOICE_ID",
		"ELEVENLABS_TTS_MODEL_ID",
		"ELEVENLABS_TTS_OUTPUT_FORMAT",
		"DATABASE_URL",
		"KAFKA_ENABLED",
		"KAFKA_BROKERS",
		"KAFKA_TOPIC_TRANSCRIPT",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
