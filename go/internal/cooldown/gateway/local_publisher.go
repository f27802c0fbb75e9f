package gateway

import (
	"context"

	"github.com/mcdev12/finoxa/go/internal/cooldown/events"
)

// LocalPublisher broadcasts events straight to the connection manager. It stands
// in for the JetStream round trip when the server runs without NATS.
type LocalPublisher struct {
	connectionManager *ConnectionManager
}

func NewLocalPublisher(cm *ConnectionManager) *LocalPublisher {
	return &LocalPublisher{connectionManager: cm}
}

func (p *LocalPublisher) Publish(_ context.Context, env events.Envelope) error {
	wsEvent, err := FromEnvelope(env)
	if err != nil {
		return err
	}
	p.connectionManager.BroadcastToSession(env.SessionID, wsEvent)
	return nil
}
