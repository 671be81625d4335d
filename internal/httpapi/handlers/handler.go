package handlers

import (
	"context"

	"github.com/krizar/koboldbot/internal/engine"
	"github.com/krizar/koboldbot/internal/logging"
	"github.com/krizar/koboldbot/internal/store/rabbitmq"
)

// Sender delivers engine actions to the messaging platform.
type Sender interface {
	Send(ctx context.Context, act engine.Action) error
}

// Publisher queues updates for asynchronous handling by a worker.
type Publisher interface {
	PublishUpdate(ctx context.Context, job rabbitmq.UpdateJob) error
}

// Handler serves the webhook surface. With a Publisher configured, updates
// are queued and a worker runs them; otherwise they are handled inline.
type Handler struct {
	Engine    *engine.Engine
	Sender    Sender
	Publisher Publisher // optional
	Secret    string
	Log       logging.Logger
}

func NewHandler(eng *engine.Engine, sender Sender, pub Publisher, secret string, log logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{Engine: eng, Sender: sender, Publisher: pub, Secret: secret, Log: log}
}
