package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
	retention time.Duration
}

// PublisherConfig tunes the relay. Retention is how long published rows are kept
// before the relay deletes them; zero keeps them forever.
type PublisherConfig struct {
	Brokers   []string
	PollEvery time.Duration
	BatchSize int
	Retention time.Duration
}

// purgeEvery is how often the relay prunes published rows.
const purgeEvery = time.Hour

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   cfg.Brokers,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		retention: cfg.Retention,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := kafkax.NewWriter(p.brokers)
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()
	purge := time.NewTicker(purgeEvery)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-purge.C:
			p.purge(ctx, time.Now())
		case <-ticker.C:
			n, err := p.publishBatch(ctx, writer)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox batch published", "count", n)
			}
		}
	}
}

func (p *Publisher) purge(ctx context.Context, now time.Time) {
	if p.retention <= 0 {
		return
	}
	n, err := p.repo.PurgePublished(ctx, now.Add(-p.retention))
	if err != nil {
		p.logger.Error("outbox purge failed", "err", err)
		return
	}
	if n > 0 {
		p.logger.Info("outbox purged", "deleted", n)
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, BuildMessage(ctx, r))
		ids = append(ids, r.ID)
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(records), tx.Commit(ctx)
}

// BuildMessage turns an outbox record into a Kafka message keyed by aggregate id,
// carrying the event metadata headers and the trace context stored with the row.
func BuildMessage(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.StoredTraceContext{Traceparent: r.Traceparent, Tracestate: r.Tracestate}.Restore(ctx)
	headers := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType, TenantID: r.TenantID}.Headers()
	return kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, headers),
	}
}
