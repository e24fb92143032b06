package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/metrics"
)

// Publisher sends envelopes to the bus.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// NopPublisher drops every envelope.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Envelope) error { return nil }

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// AsyncPublisher queues envelopes and publishes them from a background
// goroutine, so callers never wait on the bus. When the queue is full the
// envelope is dropped and logged.
type AsyncPublisher struct {
	next    Publisher
	logger  *zap.Logger
	timeout time.Duration

	queue chan Envelope
	done  chan struct{}
	once  sync.Once
}

// NewAsyncPublisher starts the background loop. queueSize <= 0 uses a default.
func NewAsyncPublisher(next Publisher, queueSize int, logger *zap.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &AsyncPublisher{
		next:    next,
		logger:  logger.With(zap.String("component", "event-publisher")),
		timeout: defaultPublishTimeout,
		queue:   make(chan Envelope, queueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues env and returns immediately.
func (p *AsyncPublisher) Publish(_ context.Context, env Envelope) (err error) {
	defer func() {
		// Publishing after Close sends on a closed channel.
		if recover() != nil {
			p.logger.Warn("event dropped after close", zap.String("event", env.Name))
			metrics.EventsPublishedTotal.WithLabelValues(env.Name, "dropped").Inc()
			err = nil
		}
	}()
	select {
	case p.queue <- env:
	default:
		p.logger.Warn("event queue full, dropping event", zap.String("event", env.Name))
		metrics.EventsPublishedTotal.WithLabelValues(env.Name, "dropped").Inc()
	}
	return nil
}

// Close stops accepting envelopes and waits for the queue to drain or ctx to end.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.once.Do(func() { close(p.queue) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for env := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.next.Publish(ctx, env); err != nil {
			p.logger.Warn("event publish failed", zap.String("event", env.Name), zap.Error(err))
			metrics.EventsPublishedTotal.WithLabelValues(env.Name, "failed").Inc()
		} else {
			metrics.EventsPublishedTotal.WithLabelValues(env.Name, "ok").Inc()
		}
		cancel()
	}
}
