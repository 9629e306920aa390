package runtime

import (
	"chat-delivery/contract"
	"chat-delivery/domain"
	"chat-delivery/domain/event"
	"chat-delivery/observability"
	"context"
	"log/slog"
	"time"
)

// pusher delivers outbound events to live connections. A push is bounded by
// timeout and never retried, its failure is only logged and counted.
// Pushes outlive the cancellation of the actor's context: once an event is
// persisted, an aborted request must not starve the other members.
type pusher struct {
	log      *slog.Logger
	registry contract.IConnectionRegistry
	metrics  *observability.Metrics
	timeout  time.Duration
}

func (p pusher) push(ctx context.Context, connID domain.ConnectionID, e event.Outbound) {
	s, ok := p.registry.SinkOf(connID)
	if !ok {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err := s.Consume(pushCtx, e)
	p.metrics.Push(err)
	if err != nil {
		p.log.Debug("Live push failed", "connection_id", connID, "event", e.Name(), "error", err)
	}
}

// pushAll delivers e to every connection but except, which may be empty.
func (p pusher) pushAll(ctx context.Context, connections []domain.ConnectionID, except domain.ConnectionID, e event.Outbound) {
	for _, connID := range connections {
		if connID == except {
			continue
		}
		p.push(ctx, connID, e)
	}
}
