package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/linktoolkit/linktoolkit/internal/app/model"
	"github.com/linktoolkit/linktoolkit/internal/app/repository"
	"github.com/linktoolkit/linktoolkit/internal/infra/metrics"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const fetchErrorBackoff = time.Second

// pullFetcher is the slice of *nats.Subscription the consume loop uses;
// narrowed so tests can fake it.
type pullFetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
	Unsubscribe() error
}

// ClickConsumer pulls raw click events off JetStream, enriches them, and
// persists click records. Every outcome acks the message: a click that
// cannot be stored (malformed payload, link already swept, insert failure)
// is an accepted loss, never a redelivered poison message.
type ClickConsumer struct {
	js       nats.JetStreamContext
	logger   *zap.Logger
	repo     repository.ClickRepository
	enricher *ClickEnricher
	metrics  *metrics.Metrics

	batchSize int
	stopChan  chan struct{}
}

// NewClickConsumer creates a consumer over the given stream context.
func NewClickConsumer(
	js nats.JetStreamContext,
	logger *zap.Logger,
	repo repository.ClickRepository,
	enricher *ClickEnricher,
	m *metrics.Metrics,
	batchSize int,
) *ClickConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ClickConsumer{
		js:        js,
		logger:    logger,
		repo:      repo,
		enricher:  enricher,
		metrics:   m,
		batchSize: batchSize,
		stopChan:  make(chan struct{}),
	}
}

// Start ensures the stream and durable consumer exist, then begins consuming.
func (c *ClickConsumer) Start() error {
	if _, err := c.js.StreamInfo(model.ClickStreamName); err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.ClickStreamName,
			Subjects: []string{model.ClickStreamSubject},
			MaxBytes: model.ClickStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
	}

	if _, err := c.js.ConsumerInfo(model.ClickStreamName, model.ClickConsumerName); err != nil {
		_, err = c.js.AddConsumer(model.ClickStreamName, &nats.ConsumerConfig{
			Durable:   model.ClickConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ClickStreamSubject, model.ClickConsumerName)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

// Stop terminates the consume loop; in-flight messages finish first.
func (c *ClickConsumer) Stop() {
	close(c.stopChan)
}

func (c *ClickConsumer) consume(sub pullFetcher) {
	ctx := context.Background()
	for {
		select {
		case <-c.stopChan:
			_ = sub.Unsubscribe()
			c.logger.Info("click consumer stopped")
			return
		default:
		}

		msgs, err := sub.Fetch(c.batchSize, nats.MaxWait(5*time.Second))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			// A dead connection fails Fetch immediately; back off so the
			// loop does not spin hot until the reconnect lands.
			c.logger.Error("failed to fetch click events", zap.Error(err))
			select {
			case <-c.stopChan:
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}

		for _, msg := range msgs {
			c.ingest(ctx, msg)
			_ = msg.Ack()
		}
	}
}

// ingest turns one raw event into a persisted click record. Enrichment
// failures degrade to empty fields; only the insert itself can lose the
// record, and that loss is logged and counted.
func (c *ClickConsumer) ingest(ctx context.Context, msg *nats.Msg) {
	var event model.ClickEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.Error("failed to unmarshal click event", zap.Error(err))
		if c.metrics != nil {
			c.metrics.ClicksDiscarded.Inc()
		}
		return
	}

	click := &model.Click{
		LinkID:      event.LinkID,
		ClickedAt:   event.OccurredAt,
		IPAddress:   event.IP,
		UserAgent:   event.UserAgent,
		Referer:     event.Referer,
		CountryCode: c.enricher.Country(event.IP),
		DeviceType:  c.enricher.Device(event.UserAgent),
	}

	if err := c.repo.Create(ctx, click); err != nil {
		// Usually the link was swept between redirect and ingestion; the
		// foreign key rejects the row and the click is dropped.
		c.logger.Warn("failed to store click",
			zap.String("link_id", event.LinkID.String()),
			zap.Error(err),
		)
		if c.metrics != nil {
			c.metrics.ClicksDiscarded.Inc()
		}
		return
	}

	if c.metrics != nil {
		c.metrics.ClicksIngested.Inc()
	}
	c.logger.Debug("click stored",
		zap.String("link_id", event.LinkID.String()),
		zap.String("country", click.CountryCode),
		zap.String("device", click.DeviceType),
	)
}
