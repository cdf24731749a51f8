package notifications

import (
	"context"

	"go.uber.org/zap"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
)

// Notifier delivers one event somewhere outside the process
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Run feeds sub into n until ctx ends or the subscription is closed.
// Delivery failures are logged and never retried.
func Run(ctx context.Context, sub *Subscription, n Notifier, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if err := n.Notify(ctx, e); err != nil {
				log.Warn("notification failed",
					zap.String("sink", sub.Name),
					zap.String("type", string(e.Type)),
					logger.ErrorField(err))
			}
		}
	}
}

// LogSink writes events to the structured log
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a log sink
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.Named("events")}
}

func (s *LogSink) Notify(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("type", string(e.Type)),
		zap.String("symbol", e.Symbol),
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	if e.State != "" {
		fields = append(fields, zap.String("state", e.State))
	}
	if e.Fill != nil {
		fields = append(fields,
			zap.String("side", string(e.Fill.Side)),
			zap.Float64("price", e.Fill.Price),
			zap.Float64("qty", e.Fill.Quantity))
	}

	if e.IsAlert() {
		s.log.Warn(e.Message, fields...)
	} else {
		s.log.Info(e.Message, fields...)
	}
	return nil
}
