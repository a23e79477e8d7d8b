package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/fathima-sithara/petadopt-messaging/internal/metrics"
	"github.com/fathima-sithara/petadopt-messaging/internal/middleware"
	"github.com/fathima-sithara/petadopt-messaging/internal/service"
	"github.com/fathima-sithara/petadopt-messaging/internal/ws"
)

type Options struct {
	Service        *service.ConversationService
	Hub            *ws.Hub
	Validator      middleware.TokenValidator
	Limiter        *middleware.RateLimiter
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	RequestTimeout time.Duration
	CORSOrigins    string
	WS             ws.Config
}

// NewServer wires the REST routes under /api plus /ws, /health and /metrics.
func NewServer(o Options) *fiber.App {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}

	app := fiber.New(fiber.Config{
		AppName:               "petadopt-messaging",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(middleware.ZapLogger(o.Log))
	if o.CORSOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: o.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	if o.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(o.Metrics.Handler()))
	}
	if o.Hub != nil {
		app.Get("/ws", ws.Upgrade(o.Validator), ws.Handler(o.Hub, o.WS))
	}

	h := NewHandlers(o.Service, o.Hub, o.Log, o.RequestTimeout)

	api := app.Group("/api", middleware.JWTAuth(o.Validator))

	conv := api.Group("/conversations")
	conv.Get("/", h.listConversations)
	conv.Post("/", h.findOrCreateConversation)
	conv.Get("/:id/messages", h.listMessages)
	conv.Post("/:id/messages", o.Limiter.PerUser(), h.postMessage)
	conv.Post("/:id/read", h.markRead)
	// the web client still deletes through the conversations router
	conv.Delete("/messages/:messageId", h.deleteMessage)

	api.Delete("/messages/:messageId", h.deleteMessage)
	api.Get("/presence/:userId", h.presence)

	return app
}
