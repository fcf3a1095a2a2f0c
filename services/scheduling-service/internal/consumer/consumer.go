// Package consumer runs inbox-deduplicated Kafka handlers.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  Reader
	logger  *slog.Logger
	inbox   inbox.Store
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inboxStore inbox.Store, cfg Config, handler Handler) *Consumer {
	reader := kafkax.NewReader(kafkax.SplitBrokers(cfg.Brokers), cfg.GroupID, cfg.Topic)
	return NewWithReader(logger, inboxStore, reader, handler)
}

func NewWithReader(logger *slog.Logger, inboxStore inbox.Store, reader Reader, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inboxStore,
		handler: handler,
	}
}

// Run consumes until ctx is cancelled. Offsets are committed after handling, so a
// message whose handler failed is logged and skipped, and its inbox entry is released.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.Handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// Handle processes one message. It reports whether the handler ran and succeeded.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) bool {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		c.logger.Warn("event without id dropped", "topic", msg.Topic, "offset", msg.Offset)
		return false
	}

	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox record failed")
		return false
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return false
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		if forgetErr := c.inbox.Forget(ctxSpan, meta.EventID); forgetErr != nil {
			c.logger.Error("inbox release failed", "err", forgetErr, "event_id", meta.EventID)
		}
		return false
	}
	return true
}
