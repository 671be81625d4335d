package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/krizar/koboldbot/internal/store/rabbitmq"
	"github.com/krizar/koboldbot/internal/telegram"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Webhook receives one platform update. The response is always a fast 2xx
// once the update is accepted: replies go out through the Sender, not the
// webhook response body.
func (h *Handler) Webhook(c *gin.Context) {
	if h.Secret != "" && c.GetHeader(secretHeader) != h.Secret {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var wire telegram.WebhookUpdate
	if err := c.ShouldBindJSON(&wire); err != nil {
		h.Log.Warn(c.Request.Context(), "invalid webhook payload", "error", err)
		c.Status(http.StatusBadRequest)
		return
	}

	up, ok := telegram.ToEngineUpdate(wire)
	if !ok {
		// not a message update; nothing to do
		c.Status(http.StatusOK)
		return
	}

	ctx := c.Request.Context()

	if h.Publisher != nil {
		job := rabbitmq.UpdateJob{JobID: ulid.Make().String(), Update: up}
		if err := h.Publisher.PublishUpdate(ctx, job); err != nil {
			h.Log.Error(ctx, "update publish failed, handling inline", "job", job.JobID, "error", err)
		} else {
			c.Status(http.StatusOK)
			return
		}
	}

	act := h.Engine.Handle(ctx, up)
	if err := h.Sender.Send(ctx, act); err != nil {
		h.Log.Error(ctx, "reply send failed", "chat", act.ChatID, "error", err)
	}
	c.Status(http.StatusOK)
}
