package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prepview/voice-gateway/internal/backend"
	"github.com/prepview/voice-gateway/internal/config"
	"github.com/prepview/voice-gateway/internal/events"
	"github.com/prepview/voice-gateway/internal/gateway"
	"github.com/prepview/voice-gateway/internal/interview"
	"github.com/prepview/voice-gateway/internal/observability"
	"github.com/prepview/voice-gateway/internal/session"
	"github.com/prepview/voice-gateway/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not initialized yet
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("backend_url", cfg.BackendURL).
		Str("commit_strategy", cfg.CommitStrategy).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Interview voice gateway starting")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	store := session.NewMemoryStore(logger)
	store.StartJanitor(rootCtx, time.Minute,
		time.Duration(cfg.SessionMaxIdleSec)*time.Second)

	responder := backend.NewMeshClient(cfg, logger)
	synth := tts.NewElevenLabsClient(cfg, logger)
	publisher := events.NewPublisher(cfg, logger)
	defer publisher.Close()

	interviews := interview.NewHandler(cfg, store, responder, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/voice", gateway.HandleVoiceWS(gateway.Deps{
		Config:    cfg,
		Store:     store,
		Responder: responder,
		Synth:     synth,
		Publisher: publisher,
	}))
	mux.HandleFunc("/api/interview/start", interviews.Start)
	mux.HandleFunc("/api/interview/summary", interviews.Summary)
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	backendCheck := func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BackendURL+"/health", nil)
		if err != nil {
			return false, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()
		return resp.StatusCode < http.StatusInternalServerError, nil
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"backend": backendCheck,
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/voice", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
