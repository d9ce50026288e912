package service

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/linktoolkit/linktoolkit/internal/app/model"
	"github.com/linktoolkit/linktoolkit/internal/infra/metrics"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const defaultPublishBuffer = 1024

// jetStreamPublisher is the slice of nats.JetStreamContext the publisher
// needs; narrowed so tests can fake it.
type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// ClickPublisher hands visit events from the redirect path to JetStream
// without ever blocking or failing a redirect. Events pass through a bounded
// buffer; when it is full the event is dropped and counted, which trades
// click-count accuracy for redirect availability.
type ClickPublisher struct {
	js      jetStreamPublisher
	logger  *zap.Logger
	metrics *metrics.Metrics

	events  chan model.ClickEvent
	quit    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
}

// NewClickPublisher creates a publisher with the given buffer size (<=0
// selects the default). Call Start before publishing and Close on shutdown.
func NewClickPublisher(js jetStreamPublisher, logger *zap.Logger, m *metrics.Metrics, bufferSize int) *ClickPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = defaultPublishBuffer
	}
	return &ClickPublisher{
		js:      js,
		logger:  logger,
		metrics: m,
		events:  make(chan model.ClickEvent, bufferSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the drain goroutine.
func (p *ClickPublisher) Start() {
	go p.drain()
}

// Publish enqueues a raw visit event. It never blocks: a full buffer drops
// the event and increments the drop counter. Safe to call concurrently with
// Close; the events channel is never closed, so a racing send cannot panic.
func (p *ClickPublisher) Publish(linkID uuid.UUID, ip, userAgent, referer string) {
	if p.stopped.Load() {
		return
	}

	event := model.ClickEvent{
		ID:         uuid.New().String(),
		LinkID:     linkID,
		IP:         ip,
		UserAgent:  userAgent,
		Referer:    referer,
		OccurredAt: time.Now().UTC(),
	}

	select {
	case p.events <- event:
	case <-p.quit:
	default:
		if p.metrics != nil {
			p.metrics.ClicksDropped.Inc()
		}
		p.logger.Warn("click buffer full, event dropped",
			zap.String("link_id", linkID.String()),
		)
	}
}

// Close stops accepting events, flushes what is buffered, and returns once
// the drain goroutine has exited.
func (p *ClickPublisher) Close() {
	if p.stopped.Swap(true) {
		return
	}
	close(p.quit)
	<-p.done
}

func (p *ClickPublisher) drain() {
	defer close(p.done)

	for {
		select {
		case event := <-p.events:
			p.publishEvent(event)
		case <-p.quit:
			// Flush whatever is already buffered, then exit.
			for {
				select {
				case event := <-p.events:
					p.publishEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (p *ClickPublisher) publishEvent(event model.ClickEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal click event", zap.Error(err))
		return
	}

	if _, err := p.js.Publish(model.ClickStreamSubject, data); err != nil {
		if p.metrics != nil {
			p.metrics.ClicksDropped.Inc()
		}
		p.logger.Error("failed to publish click event",
			zap.String("link_id", event.LinkID.String()),
			zap.Error(err),
		)
		return
	}
	if p.metrics != nil {
		p.metrics.ClicksPublished.Inc()
	}
}
