package sink

import (
	"chat-delivery/domain/event"
	"chat-delivery/errors"
	"context"
	"fmt"
	"sync"
)

// ConnectionSink buffers the events pushed to one live connection until its
// writer drains them. It never closes Events, a closed sink only stops
// accepting new pushes.
type ConnectionSink struct {
	Events chan event.Outbound
	done   chan struct{}
	once   sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		Events: make(chan event.Outbound, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume is called by the router
// It waits for room in the buffer at most until ctx is done, the caller bounds
// it with the push timeout. A push that cannot be delivered is not retried.
func (s *ConnectionSink) Consume(ctx context.Context, e event.Outbound) error {
	select {
	case <-s.done:
		return fmt.Errorf("%w: connection closed", errors.ErrDeliveryBestEffort)
	default:
	}
	select {
	case s.Events <- e:
		return nil
	case <-s.done:
		return fmt.Errorf("%w: connection closed", errors.ErrDeliveryBestEffort)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrDeliveryBestEffort, ctx.Err())
	}
}

// Done is closed once the connection is gone.
func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}

func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}
