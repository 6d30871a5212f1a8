package ingress

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/service"
)

const handlerTimeout = 30 * time.Second

type MessageHandler struct {
	router     service.Router
	enricher   service.Enricher
	logger     *slog.Logger
	maxRetries int
}

func NewMessageHandler(router service.Router, enricher service.Enricher, logger *slog.Logger, cfg *config.Config) *MessageHandler {
	return &MessageHandler{
		router:     router,
		enricher:   enricher,
		logger:     logger.With("component", "ingress"),
		maxRetries: cfg.Bus.MaxRetries,
	}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{}, logger)
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, sub message.Subscriber, pub message.Publisher, cfg *config.Config) error {
	poison, err := middleware.PoisonQueue(pub, cfg.PubSub.PoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_EVENT_V1", cfg.PubSub.IngressTopic, Bind(h, h.OnEventV1)},
		{"ON_EVENT_BATCH_V1", cfg.PubSub.BatchTopic, Bind(h, h.OnEventBatchV1)},
	}

	for _, c := range configs {
		handler := router.AddConsumerHandler(c.name, c.topic, sub, c.handler)

		// [MIDDLEWARE_ORDER] outermost first: retries run inside the poison queue,
		// so only messages that exhausted them are parked.
		handler.AddMiddleware(
			CorrelationIDMiddleware,
			LoggingMiddleware(h.logger),
		)
		if cfg.PubSub.Throttle > 0 {
			handler.AddMiddleware(middleware.NewThrottle(cfg.PubSub.Throttle, time.Second).Middleware)
		}
		handler.AddMiddleware(
			poison,
			NewRetryMiddleware().Middleware,
			middleware.Timeout(handlerTimeout),
		)
	}

	h.logger.Info("INGRESS_PIPELINE_READY",
		"ingress_topic", cfg.PubSub.IngressTopic,
		"batch_topic", cfg.PubSub.BatchTopic,
		"poison_topic", cfg.PubSub.PoisonTopic,
	)
	return nil
}
