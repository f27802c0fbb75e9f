package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/finoxa/go/internal/config"
	"github.com/mcdev12/finoxa/go/internal/cooldown"
	"github.com/mcdev12/finoxa/go/internal/cooldown/gateway"
	"github.com/mcdev12/finoxa/go/internal/cooldown/publisher"
	"github.com/mcdev12/finoxa/go/internal/kvstore"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	port := getEnv("GATEWAY_PORT", "8081")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to NATS
	jsCfg := publisher.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	nc, err := publisher.Connect(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Drain()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream context")
	}

	// Make sure the event stream exists before the consumer binds to it
	if _, err := publisher.NewJetStreamPublisher(ctx, js, jsCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure event stream")
	}

	log.Info().
		Str("nats_url", cfg.NATS.URL).
		Str("port", port).
		Msg("starting cooldown gateway")

	// The API server persists remaining seconds in the NATS bucket; the
	// gateway reads them to answer state requests without owning any countdown.
	stateApp, err := setupStateApp(ctx, cfg, js)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up state provider")
	}
	defer stateApp.Close()

	gatewayConfig := gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		JetStreamConfig:  gateway.DefaultJetStreamConsumerConfig(),
	}
	gatewayConfig.JetStreamConfig.ConsumerName = getEnv("GATEWAY_CONSUMER", gatewayConfig.JetStreamConfig.ConsumerName)

	gatewayService, err := gateway.NewService(ctx, gatewayConfig, stateApp, js)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := gatewayService.GetStats()
		info := map[string]any{
			"service":         "cooldown-gateway",
			"version":         "1.0.0",
			"connections":     stats.TotalConnections,
			"active_sessions": stats.ActiveSessions,
		}
		if ci, err := gatewayService.ConsumerInfo(r.Context()); err != nil {
			log.Warn().Err(err).Msg("failed to read consumer info")
		} else if ci != nil {
			info["consumer_pending"] = ci.NumPending
			info["consumer_ack_pending"] = ci.NumAckPending
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      cors.AllowAll().Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start gateway service (includes event consumer and connection manager)
	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Cancel service context to stop gateway service
	cancel()

	log.Info().Msg("cooldown gateway shutdown complete")
}

func setupStateApp(ctx context.Context, cfg *config.Config, js jetstream.JetStream) (*cooldown.App, error) {
	natsCfg := kvstore.DefaultNATSConfig()
	if cfg.Store.Bucket != "" {
		natsCfg.Bucket = cfg.Store.Bucket
	}
	if cfg.Store.TTL > 0 {
		natsCfg.TTL = cfg.Store.TTL
	}
	store, err := kvstore.NewNATSStore(ctx, js, natsCfg)
	if err != nil {
		return nil, err
	}

	flows, err := cfg.CooldownFlows()
	if err != nil {
		return nil, err
	}
	return cooldown.NewApp(cooldown.Config{Store: store, Flows: flows, Interval: cfg.Interval})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
