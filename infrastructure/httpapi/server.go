package httpapi

import (
	"chat-delivery/auth"
	"chat-delivery/runtime/workers"
	"chat-delivery/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// LiveCounter exposes how many sockets and users are currently connected.
type LiveCounter interface {
	CountConnections() int
	CountUsers() int
}

type Dependencies struct {
	Tokens        *auth.TokenService
	InternalKey   string
	Conversations services.IConversationService
	Notifications services.INotificationService
	Live          LiveCounter
	Metrics       http.Handler
	WebSocket     gin.HandlerFunc
	StartedAt     time.Time
}

// NewEngine mounts every route of the delivery service.
func NewEngine(log *slog.Logger, deps Dependencies) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	base := NewBaseHandler(log)
	engine.GET("/healthz", health(log, deps.Live, deps.StartedAt))
	if deps.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.WebSocket != nil {
		engine.GET("/ws", deps.WebSocket)
	}

	api := engine.Group("/api")
	api.Use(auth.RequireUser(deps.Tokens))
	NewConversationHandler(base, deps.Conversations).RegisterRoutes(api)
	NewNotificationHandler(base, deps.Notifications).RegisterRoutes(api)

	internal := engine.Group("/internal")
	internal.Use(auth.RequireInternalKey(deps.InternalKey))
	NewInternalHandler(base, deps.Notifications).RegisterRoutes(internal)

	return engine
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func health(log *slog.Logger, live LiveCounter, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok", "uptime": time.Since(startedAt).Round(time.Second).String()}
		if live != nil {
			body["connections"] = live.CountConnections()
			body["users"] = live.CountUsers()
		}
		stats, err := workers.SelfStats()
		if err != nil {
			log.Warn("Cannot read process stats", "error", err)
		} else {
			body["process"] = stats
		}
		c.JSON(http.StatusOK, body)
	}
}
