package ingress

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
)

type correlationKey struct{}

// CorrelationIDFromContext returns the correlation id set by CorrelationIDMiddleware.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// [CORRELATION_ID_MIDDLEWARE]
// Ensures correlation id persistence through the call chain.
func CorrelationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		id := middleware.MessageCorrelationID(msg)
		if id == "" {
			id = uuid.NewString()
			middleware.SetCorrelationID(id, msg)
		}

		msg.SetContext(context.WithValue(msg.Context(), correlationKey{}, id))
		return h(msg)
	}
}

// [LOGGING_MIDDLEWARE]
// Structured logging with latency and correlation id.
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			logger.Debug("MESSAGE_HANDLED",
				"msg_id", msg.UUID,
				"correlation_id", middleware.MessageCorrelationID(msg),
				"duration_ms", time.Since(start).Milliseconds(),
				"success", err == nil,
			)
			return msgs, err
		}
	}
}

// [RETRY_MIDDLEWARE]
func NewRetryMiddleware() middleware.Retry {
	return middleware.Retry{
		MaxRetries:      3,
		InitialInterval: time.Millisecond * 100,
		MaxInterval:     time.Second * 5,
		Multiplier:      2.0,
	}
}
