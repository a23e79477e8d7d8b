package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/petadopt-messaging/internal/apperr"
	"github.com/fathima-sithara/petadopt-messaging/internal/middleware"
	"github.com/fathima-sithara/petadopt-messaging/internal/models"
	"github.com/fathima-sithara/petadopt-messaging/internal/service"
	"github.com/fathima-sithara/petadopt-messaging/internal/ws"
)

type Handlers struct {
	svc     *service.ConversationService
	hub     *ws.Hub
	log     *zap.Logger
	timeout time.Duration
}

func NewHandlers(svc *service.ConversationService, hub *ws.Hub, log *zap.Logger, timeout time.Duration) *Handlers {
	return &Handlers{svc: svc, hub: hub, log: log, timeout: timeout}
}

func (h *Handlers) ctx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// fail writes err as {"error": msg} with the status of its taxonomy.
func (h *Handlers) fail(c *fiber.Ctx, err error) error {
	status := apperr.Status(err)
	if status >= fiber.StatusInternalServerError {
		h.log.Error("request error",
			zap.String("path", c.Path()), zap.String("user_id", middleware.UserID(c)), zap.Error(err))
	}
	return middleware.Fail(c, err)
}

func (h *Handlers) listConversations(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	out, err := h.svc.ListConversations(ctx, middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

func (h *Handlers) findOrCreateConversation(c *fiber.Ctx) error {
	var req struct {
		OtherUserID string `json:"otherUserId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, apperr.BadRequest("invalid body"))
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	conv, err := h.svc.FindOrCreateConversation(ctx, middleware.UserID(c), req.OtherUserID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(conv)
}

func (h *Handlers) listMessages(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	msgs, err := h.svc.ListMessages(ctx, middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(msgs)
}

func (h *Handlers) postMessage(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, apperr.BadRequest("invalid body"))
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	msg, err := h.svc.PostMessage(ctx, middleware.UserID(c), c.Params("id"), req.Text)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(msg)
}

func (h *Handlers) markRead(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	n, err := h.svc.MarkConversationRead(ctx, middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

func (h *Handlers) deleteMessage(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.svc.DeleteMessage(ctx, middleware.UserID(c), c.Params("messageId")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "ok"})
}

func (h *Handlers) presence(c *fiber.Ctx) error {
	uid := models.NormalizeID(c.Params("userId"))
	if uid == "" {
		return h.fail(c, apperr.BadRequest("userId is required"))
	}
	if h.hub == nil {
		return c.JSON(fiber.Map{"userId": uid, "online": false})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	online, err := h.hub.Online(ctx, uid)
	if err != nil {
		return h.fail(c, apperr.Unavailable("presence", err))
	}
	return c.JSON(fiber.Map{"userId": uid, "online": online})
}
