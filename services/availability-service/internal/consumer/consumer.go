package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/brightsmile/dentalbook/libs/kafkax"
	otelx "github.com/brightsmile/dentalbook/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Invalidator drops cached snapshots. snapshot.Loader implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, days ...time.Time) error
}

// Inbox deduplicates redelivered events. Record returns false for duplicates.
type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
}

type InvalidationObserver interface {
	ObserveInvalidation(trigger string, days int)
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
	// Location and BookingDuration map event timestamps onto clinic days.
	Location        *time.Location
	BookingDuration time.Duration
}

type Consumer struct {
	reader      *kafka.Reader
	logger      *slog.Logger
	inbox       Inbox
	invalidator Invalidator
	observer    InvalidationObserver
	loc         *time.Location
	bookingDur  time.Duration
}

// New builds a consumer group reader over cfg.Topics. inbox and observer may be nil.
func New(logger *slog.Logger, cfg Config, invalidator Invalidator, inbox Inbox, observer InvalidationObserver) *Consumer {
	topics := cfg.Topics
	if len(topics) == 0 {
		topics = []string{TopicBookingChanged, TopicOffHourChanged}
	}
	var reader *kafka.Reader
	if brokers := kafkax.SplitBrokers(cfg.Brokers); len(brokers) > 0 {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     cfg.GroupID,
			GroupTopics: topics,
			MinBytes:    1,
			MaxBytes:    10e6,
		})
	}
	return newConsumer(logger, reader, cfg, invalidator, inbox, observer)
}

func newConsumer(logger *slog.Logger, reader *kafka.Reader, cfg Config, invalidator Invalidator, inbox Inbox, observer InvalidationObserver) *Consumer {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	dur := cfg.BookingDuration
	if dur <= 0 {
		dur = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:      reader,
		logger:      logger,
		inbox:       inbox,
		invalidator: invalidator,
		observer:    observer,
		loc:         loc,
		bookingDur:  dur,
	}
}

// Run reads until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	if c.reader == nil {
		c.logger.Info("kafka consumer disabled; no brokers configured")
		return
	}
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
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
		_ = c.Handle(ctx, msg)
	}
}

// Handle processes one message. Failed messages are not retried; the cache TTL bounds
// how long a missed invalidation stays visible.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otelx.Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)

	if c.inbox != nil {
		ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
			return err
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
	}

	ev, err := DecodeChangeEvent(msg.Value)
	if err != nil {
		c.logger.Warn("malformed change event", "err", err, "event_id", meta.EventID, "topic", msg.Topic)
		span.RecordError(err)
		return err
	}
	days := ev.AffectedDays(c.loc, c.bookingDur)
	if len(days) == 0 {
		c.logger.Warn("change event without timestamps", "event_id", meta.EventID, "topic", msg.Topic)
		return nil
	}
	if err := c.invalidator.Invalidate(ctxSpan, days...); err != nil {
		c.logger.Error("snapshot invalidation failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		return err
	}
	if c.observer != nil {
		c.observer.ObserveInvalidation("kafka", len(days))
	}
	span.SetAttributes(attribute.Int("clinic.days_invalidated", len(days)))
	c.logger.Debug("snapshots invalidated", "event_id", meta.EventID, "days", len(days))
	return nil
}
