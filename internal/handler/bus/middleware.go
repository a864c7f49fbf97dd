package bus

import (
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// CorrelationMiddleware stamps envelopes that arrived without a correlation
// id so log lines across instances can be joined.
func CorrelationMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get("correlation_id") == "" {
			msg.Metadata.Set("correlation_id", uuid.NewString())
		}
		return h(msg)
	}
}

// LoggingMiddleware records handling latency per envelope.
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			logger.Debug("bus envelope handled",
				"msg_id", msg.UUID,
				"correlation_id", msg.Metadata.Get("correlation_id"),
				"duration_ms", time.Since(start).Milliseconds(),
				"success", err == nil,
			)
			return msgs, err
		}
	}
}
