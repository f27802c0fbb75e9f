package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/grpcreflect"
	"github.com/mcdev12/finoxa/go/internal/config"
	"github.com/mcdev12/finoxa/go/internal/cooldown/rpc"
	"github.com/mcdev12/finoxa/go/internal/resendlog"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           newHandler(services),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func newHandler(services *Services) http.Handler {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(mux, services)

	// Setup reflection for grpcui/grpcurl
	setupReflection(mux)

	// Add health check endpoint
	setupHealthCheck(mux, services)

	// Wrap with CORS
	handler := c.Handler(mux)

	return h2c.NewHandler(handler, &http2.Server{})
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Register cooldown service
	cooldownServicePath, cooldownServiceHandler := rpc.NewCooldownServiceHandler(services.RPC)
	mux.Handle(cooldownServicePath, cooldownServiceHandler)

	// WebSocket and state routes
	services.Gateway.RegisterRoutes(mux)

	if services.Audit != nil {
		resendlog.NewHandler(services.Audit).RegisterRoutes(mux)
	}
}

func setupReflection(mux *http.ServeMux) {
	reflector := grpcreflect.NewStaticReflector(
		rpc.CooldownServiceName,
	)
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := services.Gateway.GetStats()
		info := map[string]any{
			"service":     "finoxa-cooldown",
			"version":     "1.0.0",
			"mounted":     services.App.Mounted(),
			"connections": stats.TotalConnections,
		}
		if ci, err := services.Gateway.ConsumerInfo(r.Context()); err != nil {
			log.Warn().Err(err).Msg("failed to read consumer info")
		} else if ci != nil {
			info["consumer_pending"] = ci.NumPending
			info["consumer_ack_pending"] = ci.NumAckPending
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to write info response")
		}
	})
}
