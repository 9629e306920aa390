package runtime

import (
	"chat-delivery/domain"
	"chat-delivery/errors"
	"chat-delivery/sink"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Connect_Then_Bind(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID := domain.NewConnectionID()
	timeline := sink.NewTimeline("alice")

	// Given a connection not announced yet
	registry.Connect(connID, timeline)
	_, ok := registry.UserOf(connID)
	req.False(ok)
	req.False(registry.IsOnline("alice"))

	// When the connection announces alice
	req.NoError(registry.Bind(connID, "alice"))

	// Then alice is online through this connection
	userID, ok := registry.UserOf(connID)
	req.True(ok)
	req.Equal(domain.UserID("alice"), userID)
	req.True(registry.IsOnline("alice"))
	req.Equal([]domain.ConnectionID{connID}, registry.ConnectionsFor("alice"))

	s, ok := registry.SinkOf(connID)
	req.True(ok)
	req.Equal(timeline, s)
}

func TestRegistry_Bind_Unknown_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	err := registry.Bind(domain.NewConnectionID(), "alice")

	req.ErrorIs(err, errors.ErrUnauthenticated)
}

func TestRegistry_Bind_Invalid_Identity(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID := domain.NewConnectionID()
	registry.Connect(connID, sink.NewTimeline(""))

	req.ErrorIs(registry.Bind(connID, ""), errors.ErrInvalidIdentity)
	req.ErrorIs(registry.Bind(connID, "a:b"), errors.ErrInvalidIdentity)
	req.Zero(registry.CountUsers())
}

func TestRegistry_Multiple_Devices(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	phone := domain.NewConnectionID()
	laptop := domain.NewConnectionID()

	// Given alice connected from two devices
	registry.Connect(phone, sink.NewTimeline("alice"))
	registry.Connect(laptop, sink.NewTimeline("alice"))
	req.NoError(registry.Bind(phone, "alice"))
	req.NoError(registry.Bind(laptop, "alice"))

	req.Len(registry.ConnectionsFor("alice"), 2)
	req.Equal(1, registry.CountUsers())
	req.Equal(2, registry.CountConnections())

	// When the phone disconnects
	userID, ok := registry.Disconnect(phone)

	// Then alice is still online through the laptop
	req.True(ok)
	req.Equal(domain.UserID("alice"), userID)
	req.True(registry.IsOnline("alice"))
	req.Equal([]domain.ConnectionID{laptop}, registry.ConnectionsFor("alice"))

	// When the laptop disconnects too
	registry.Disconnect(laptop)

	// Then no entry is left for alice
	req.False(registry.IsOnline("alice"))
	req.Empty(registry.ConnectionsFor("alice"))
	req.Zero(registry.CountUsers())
	req.Zero(registry.CountConnections())
}

func TestRegistry_Rebind_Moves_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID := domain.NewConnectionID()
	registry.Connect(connID, sink.NewTimeline("alice"))
	req.NoError(registry.Bind(connID, "alice"))

	// When the same connection announces bob
	req.NoError(registry.Bind(connID, "bob"))

	// Then alice is offline and bob online
	req.False(registry.IsOnline("alice"))
	req.True(registry.IsOnline("bob"))
	req.Equal(1, registry.CountUsers())
}

func TestRegistry_Unbind_Keeps_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID := domain.NewConnectionID()
	registry.Connect(connID, sink.NewTimeline("alice"))
	req.NoError(registry.Bind(connID, "alice"))

	registry.Unbind(connID)

	req.False(registry.IsOnline("alice"))
	_, ok := registry.SinkOf(connID)
	req.True(ok)

	// And disconnecting an unbound connection reports no user
	_, ok = registry.Disconnect(connID)
	req.False(ok)
	_, ok = registry.Disconnect(connID)
	req.False(ok)
}
