package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Service is the cooldown gateway: WebSocket fan-out of countdown events plus the
// state endpoint
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
}

// Config holds configuration for the cooldown gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the cooldown gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates the gateway. With a nil js the gateway is fed through
// LocalPublisher instead of a JetStream consumer.
func NewService(ctx context.Context, config Config, stateProvider StateProvider, js jetstream.JetStream) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(stateProvider),
	}

	if js != nil {
		consumer, err := NewEventConsumer(ctx, connectionManager, js, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}
	return s, nil
}

// Start runs the gateway until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting cooldown gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("cooldown gateway service stopped")
	return nil
}

// Publisher returns a publisher that feeds this gateway directly
func (s *Service) Publisher() *LocalPublisher {
	return NewLocalPublisher(s.connectionManager)
}

// RegisterRoutes registers the WebSocket and state routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("cooldown gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// ConsumerInfo reports the JetStream consumer state. It returns nil when the
// gateway is fed locally.
func (s *Service) ConsumerInfo(ctx context.Context) (*jetstream.ConsumerInfo, error) {
	if s.eventConsumer == nil {
		return nil, nil
	}
	return s.eventConsumer.GetConsumerInfo(ctx)
}
