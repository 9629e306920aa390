package ws

import (
	"chat-delivery/contract"
	"chat-delivery/domain"
	"chat-delivery/domain/event"
	"chat-delivery/errors"
	"chat-delivery/observability"
	"chat-delivery/sink"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	readDeadline = 90 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = int64(64 << 10)
)

// Router is the part of the delivery router a connection talks to.
type Router interface {
	Serve(ctx context.Context, connID domain.ConnectionID, inbound <-chan event.Inbound)
}

type Config struct {
	ConnectionBufferSize int
	InboundBufferSize    int
	InboundRate          float64
	InboundBurst         int
}

// Handler upgrades HTTP requests to sockets. Each socket runs three loops:
// the read loop here, the write loop draining its sink, and the router loop
// consuming its inbound channel.
type Handler struct {
	log      *slog.Logger
	registry contract.IConnectionRegistry
	router   Router
	codec    *Codec
	metrics  *observability.Metrics
	config   Config
	upgrader websocket.Upgrader
}

func NewHandler(
	log *slog.Logger,
	registry contract.IConnectionRegistry,
	router Router,
	codec *Codec,
	metrics *observability.Metrics,
	config Config,
) *Handler {
	return &Handler{
		log:      log,
		registry: registry,
		router:   router,
		codec:    codec,
		metrics:  metrics,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients come from the web front, which is served elsewhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS blocks for the lifetime of the socket. A token passed as query
// parameter announces the connection right away.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	connID := domain.NewConnectionID()
	connectionSink := sink.NewConnectionSink(h.config.ConnectionBufferSize)
	h.registry.Connect(connID, connectionSink)
	h.log.Debug("WebSocket connected", "connection_id", connID, "remote", c.Request.RemoteAddr)

	inbound := make(chan event.Inbound, h.config.InboundBufferSize)
	routed := make(chan struct{})
	go func() {
		defer close(routed)
		h.router.Serve(ctx, connID, inbound)
	}()
	go h.writeLoop(ctx, cancel, conn, connectionSink)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if token := c.Query("token"); token != "" {
		userID, err := h.codec.tokens.ValidateToken(token)
		if err != nil {
			h.reject(ctx, connectionSink, "", err)
		} else {
			inbound <- event.Announce{UserID: userID}
		}
	}

	h.readLoop(ctx, connID, conn, connectionSink, inbound)

	close(inbound)
	<-routed
	connectionSink.Close()
	h.log.Debug("WebSocket closed", "connection_id", connID)
}

func (h *Handler) readLoop(ctx context.Context, connID domain.ConnectionID, conn *websocket.Conn,
	connectionSink *sink.ConnectionSink, inbound chan<- event.Inbound) {
	limiter := rate.NewLimiter(rate.Limit(h.config.InboundRate), h.config.InboundBurst)

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("WebSocket read failed", "connection_id", connID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		in, ref, err := h.codec.Decode(raw)
		if err == nil && !limiter.Allow() {
			err = errors.ErrRateLimited
		}
		if err != nil {
			h.reject(ctx, connectionSink, ref, err)
			continue
		}

		select {
		case inbound <- in:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop drains the sink into the socket and keeps it alive with pings.
// A write failure closes the socket, which ends the read loop.
func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn,
	connectionSink *sink.ConnectionSink) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	// Nothing drains the sink past this point: pushes to it must fail at once
	// rather than wait for the push timeout, and the router stops serving.
	defer func() {
		connectionSink.Close()
		cancel()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-connectionSink.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			return
		case e := <-connectionSink.Events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(Encode(e)); err != nil {
				h.log.Debug("WebSocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// reject answers a frame that never reached the router.
func (h *Handler) reject(ctx context.Context, connectionSink *sink.ConnectionSink, ref string, err error) {
	h.metrics.EventsRejected.WithLabelValues(string(errors.ToCode(err))).Inc()
	pushCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = connectionSink.Consume(pushCtx, event.NewFailure(ref, err))
}
