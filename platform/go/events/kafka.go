package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/metrics"
)

// KafkaConfig locates the bus.
type KafkaConfig struct {
	Brokers       []string
	InboundTopic  string
	OutboundTopic string
	GroupID       string
	// OriginUUID is stamped on published envelopes.
	OriginUUID string
}

// KafkaPublisher writes envelopes to the outbound topic, keyed by event name.
type KafkaPublisher struct {
	writer *kafka.Writer
	origin string
}

// NewKafkaPublisher builds a publisher on cfg.OutboundTopic.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 || cfg.OutboundTopic == "" {
		return nil, errors.New("kafka brokers and outbound topic are required")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.OutboundTopic,
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           50 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		origin: cfg.OriginUUID,
	}, nil
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	if env.OriginUUID == "" {
		env.OriginUUID = p.origin
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(env.Name),
		Value: value,
		Headers: []kafka.Header{
			{Key: "name", Value: []byte(env.Name)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", env.Name, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads envelopes from the inbound topic and hands them to a
// Dispatcher. A message is committed once handled, or when it cannot be
// decoded or has no handler; a failing handler leaves it uncommitted so it
// is redelivered.
type Consumer struct {
	reader     messageReader
	dispatcher *Dispatcher
	logger     *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewConsumer builds a consumer group reader on cfg.InboundTopic.
func NewConsumer(cfg KafkaConfig, dispatcher *Dispatcher, logger *zap.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.InboundTopic == "" || cfg.GroupID == "" {
		return nil, errors.New("kafka brokers, inbound topic and group id are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.InboundTopic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return newConsumer(reader, dispatcher, logger), nil
}

func newConsumer(reader messageReader, dispatcher *Dispatcher, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		reader:     reader,
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "event-consumer")),
	}
}

// Start runs the consume loop in the background until Stop.
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.loop(ctx)
	c.logger.Info("event consumer started")
}

// Stop ends the loop and closes the reader.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) loop(ctx context.Context) {
	defer c.wg.Done()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.logger.Error("fetch event failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := c.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		log.Warn("skipping undecodable event", zap.Error(err))
		metrics.EventsConsumedTotal.WithLabelValues("", "undecodable").Inc()
		c.commit(ctx, log, msg)
		return
	}

	log = log.With(zap.String("event", env.Name))
	if err := c.dispatcher.Dispatch(ctx, env); err != nil {
		if errors.Is(err, ErrUnhandled) {
			log.Debug("ignoring event")
			metrics.EventsConsumedTotal.WithLabelValues(env.Name, "ignored").Inc()
			c.commit(ctx, log, msg)
			return
		}
		log.Error("event handler failed, not committing", zap.Error(err))
		metrics.EventsConsumedTotal.WithLabelValues(env.Name, "failed").Inc()
		return
	}
	metrics.EventsConsumedTotal.WithLabelValues(env.Name, "ok").Inc()
	c.commit(ctx, log, msg)
}

func (c *Consumer) commit(ctx context.Context, log *zap.Logger, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("commit event failed", zap.Error(err))
	}
}
