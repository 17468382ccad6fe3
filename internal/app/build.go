package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aldrinstellus/ivrdemo/internal/backend"
	"github.com/aldrinstellus/ivrdemo/internal/brain"
	"github.com/aldrinstellus/ivrdemo/internal/calls"
	"github.com/aldrinstellus/ivrdemo/internal/config"
	"github.com/aldrinstellus/ivrdemo/internal/events"
	"github.com/aldrinstellus/ivrdemo/internal/handoff"
	"github.com/aldrinstellus/ivrdemo/internal/httpapi"
	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/observability"
	"github.com/aldrinstellus/ivrdemo/internal/store"
)

type VoiceInfo struct {
	Provider       string
	Detail         string
	DefaultVoiceID string
	DefaultModelID string
}

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Calls   *calls.Manager
	Handoff *handoff.Service
	Metrics *observability.Metrics
	Voice   VoiceInfo

	// Cleanup releases the store and the event publisher.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	catalog, err := loadCatalog(cfg.BundlePath)
	if err != nil {
		return nil, err
	}

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:    cfg.BrainMode,
		HTTPURL: cfg.BrainHTTPURL,
		Timeout: cfg.BackendTimeout,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("brain adapter init failed: %w", err)
	}

	voiceSetup, err := resolveVoiceProvider(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	publisher := events.New(events.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopicTranscript,
		Enabled: cfg.KafkaEnabled,
	}, logger.With().Str("component", "events").Logger(), metrics)

	svc, err := handoff.NewService(handoff.Options{
		Store:     st,
		Brain:     adapter,
		Publisher: publisher,
		TokenTTL:  cfg.TokenTTL,
		Logger:    logger.With().Str("component", "handoff").Logger(),
	})
	if err != nil {
		_ = publisher.Close()
		_ = st.Close()
		return nil, err
	}

	var callBackend ivr.Backend = svc
	backendMode := "in-process"
	if cfg.BackendURL != "" {
		callBackend = backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
		backendMode = "remote"
	}

	manager := calls.NewManager(newCallBuilder(callDeps{
		Catalog: catalog,
		Backend: callBackend,
		Voice:   voiceSetup,
		Delays: ivr.Delays{
			Greeting:      cfg.GreetingDelay,
			Menu:          cfg.MenuDelay,
			AgentTransfer: cfg.AgentTransferDelay,
		},
		BackendTimeout:  cfg.BackendTimeout,
		SpeechQueueSize: cfg.SpeechQueueSize,
		Metrics:         metrics,
		Logger:          logger,
	}), cfg.CallInactivityTimeout)
	manager.SetExpireHook(func(info calls.Info) {
		metrics.CallEvents.WithLabelValues("expired").Inc()
		logger.Info().Str("callId", info.CallID).Msg("call expired after inactivity")
	})

	api := httpapi.New(httpapi.Options{
		Config:  cfg,
		Calls:   manager,
		Handoff: svc,
		Catalog: catalog,
		Metrics: metrics,
		Logger:  logger.With().Str("component", "httpapi").Logger(),
		Status: httpapi.Status{
			VoiceProvider:  voiceSetup.resolvedProvider,
			VoiceDetail:    voiceSetup.detail,
			DefaultVoiceID: voiceSetup.defaultVoiceID,
			BrainMode:      cfg.BrainMode,
			BackendMode:    backendMode,
			StoreMode:      storeMode(cfg.DatabaseURL),
			EventsEnabled:  publisher.Enabled(),
		},
	})

	cleanup := func() error {
		var errs []string
		if err := publisher.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := st.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Calls:   manager,
		Handoff: svc,
		Metrics: metrics,
		Voice: VoiceInfo{
			Provider:       voiceSetup.resolvedProvider,
			Detail:         voiceSetup.detail,
			DefaultVoiceID: voiceSetup.defaultVoiceID,
			DefaultModelID: voiceSetup.defaultModelID,
		},
		Cleanup: cleanup,
	}, nil
}
