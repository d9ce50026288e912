package service

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linktoolkit/linktoolkit/internal/app/model"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linktoolkit/linktoolkit/internal/infra/metrics"
)

type fakeJetStream struct {
	mu        sync.Mutex
	published [][]byte
	block     chan struct{}
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, data)
	return &nats.PubAck{Stream: model.ClickStreamName}, nil
}

func (f *fakeJetStream) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func TestClickPublisher_PublishAndDrain(t *testing.T) {
	js := &fakeJetStream{}
	m := metrics.New(prometheus.NewRegistry())
	p := NewClickPublisher(js, nil, m, 16)
	p.Start()

	linkID := uuid.New()
	p.Publish(linkID, "203.0.113.7", "test-agent", "https://ref.example.com")
	p.Close()

	require.Equal(t, 1, js.count())

	var event model.ClickEvent
	require.NoError(t, json.Unmarshal(js.published[0], &event))
	assert.Equal(t, linkID, event.LinkID)
	assert.Equal(t, "203.0.113.7", event.IP)
	assert.Equal(t, "test-agent", event.UserAgent)
	assert.Equal(t, "https://ref.example.com", event.Referer)
	assert.NotEmpty(t, event.ID)
	assert.WithinDuration(t, time.Now().UTC(), event.OccurredAt, time.Minute)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClicksPublished))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ClicksDropped))
}

func TestClickPublisher_DropsOnFullBuffer(t *testing.T) {
	block := make(chan struct{})
	js := &fakeJetStream{block: block}
	m := metrics.New(prometheus.NewRegistry())

	// Buffer of one, drain goroutine never started: the second publish must
	// drop instead of blocking the caller.
	p := NewClickPublisher(js, nil, m, 1)

	linkID := uuid.New()
	done := make(chan struct{})
	go func() {
		p.Publish(linkID, "203.0.113.7", "agent", "")
		p.Publish(linkID, "203.0.113.8", "agent", "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClicksDropped))

	close(block)
	p.Start()
	p.Close()
	assert.Equal(t, 1, js.count())
}

func TestClickPublisher_PublishRacingCloseDoesNotPanic(t *testing.T) {
	js := &fakeJetStream{}
	p := NewClickPublisher(js, nil, nil, 8)
	p.Start()

	linkID := uuid.New()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				p.Publish(linkID, "203.0.113.7", "agent", "")
			}
		}()
	}

	p.Close()
	wg.Wait()
}

func TestClickPublisher_CloseIdempotent(t *testing.T) {
	js := &fakeJetStream{}
	p := NewClickPublisher(js, nil, nil, 4)
	p.Start()

	p.Close()
	p.Close()

	// Publishing after close is a silent no-op.
	p.Publish(uuid.New(), "203.0.113.7", "agent", "")
	assert.Equal(t, 0, js.count())
}
