// Package main is the entry point for the dialer API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/config"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/conversation"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/engine"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/handler"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/middleware"
	natsclient "github.com/adrper79-dot/CallMonitor-sub000/internal/nats"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/responder"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/telephony"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting dialer API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "dialer-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	streamManager := natsclient.NewStreamManager(natsClient)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Responder client; without one the conversation manager answers with
	// the fallback utterance only.
	respClient, err := responder.NewClient(cfg.AnthropicAPIKey, cfg.OpenAIAPIKey)
	if err != nil {
		if errors.Is(err, responder.ErrNoProvider) {
			log.Warn("no responder API key configured, AI dialogue degraded to fallback")
		} else {
			log.Error("failed to create responder client", zap.Error(err))
			os.Exit(1)
		}
	}

	convo := conversation.NewManager(respClient, cfg.ResponderModel, cfg.ResponderTimeout, log)
	commander := telephony.NewNATSCommander(streamManager, cfg.CommandRetryAttempts, log)
	sink := telephony.NewSink(streamManager, cfg.CommandRetryAttempts, log)

	pool := engine.NewAgentPool(cfg.AgentWaitTimeout, cfg.WrapUpDuration, sink, log)
	defer pool.Close()

	stats := engine.NewStats(cfg.AbandonRateWindow)
	defer stats.Close()

	sessionCfg := engine.SessionConfig{
		Greeting:               cfg.GreetingScript,
		Voicemail:              cfg.VoicemailScript,
		CallbackOffer:          cfg.CallbackOfferScript,
		Nudge:                  cfg.NudgeScript,
		GatherMode:             cfg.GatherMode,
		GatherTimeout:          cfg.GatherTimeout,
		MaxConsecutiveTimeouts: cfg.MaxConsecutiveTimeouts,
	}

	eng := engine.New(commander, convo, pool, stats, sink, sessionCfg, cfg.SystemPrompt, cfg.MaxHistoryTurns, log)
	defer eng.Close()

	campaigns := engine.NewCampaigns(cfg.DefaultAbandonCeiling, cfg.DefaultMaxConcurrent, log)
	queue := engine.NewDialQueue()

	scheduler := engine.NewScheduler(eng, campaigns, queue, pool, stats, cfg.SchedulerTickInterval, log)
	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go scheduler.Run(schedCtx)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	webhookHandler := handler.NewWebhookHandler(eng, log)
	campaignHandler := handler.NewCampaignHandler(campaigns, queue, scheduler, log)
	callHandler := handler.NewCallHandler(eng, log)
	agentHandler := handler.NewAgentHandler(pool, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Telephony webhook: provider-authenticated at the network layer, not JWT.
	r.Group(func(r chi.Router) {
		r.Use(middleware.WebhookRateLimit(cfg.RateLimitRequests*10, cfg.RateLimitWindow))
		r.Post("/webhooks/telephony", webhookHandler.Telephony)
	})

	// Operator API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Campaigns
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", campaignHandler.Create)
			r.Get("/", campaignHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", campaignHandler.Get)
				r.Delete("/", campaignHandler.Cancel)
				r.Post("/pause", campaignHandler.Pause)
				r.Post("/resume", campaignHandler.Resume)
				r.Post("/restore-predictive", campaignHandler.RestorePredictive)
				r.Post("/targets", campaignHandler.EnqueueTargets)
				r.Post("/dial", campaignHandler.Dial)
			})
		})

		// Live calls
		r.Route("/calls", func(r chi.Router) {
			r.Get("/", callHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", callHandler.Get)
				r.Post("/takeover", callHandler.Takeover)
				r.Post("/hangup", callHandler.Hangup)
			})
		})

		// Agent pool
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", agentHandler.List)
			r.Post("/login", agentHandler.Login)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/logout", agentHandler.Logout)
				r.Post("/break", agentHandler.Break)
				r.Post("/available", agentHandler.Available)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Stop originating new dials before draining HTTP.
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
