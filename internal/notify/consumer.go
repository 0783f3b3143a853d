package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	MaxRetries        = 3
	InitialRetryDelay = 1 * time.Second
	MaxRetryDelay     = 30 * time.Second
)

func DLQTopic(topic string) string {
	return topic + ".dlq"
}

type NotificationHandler interface {
	HandleNotification(ctx context.Context, event NotificationEvent) error
	IsRetryable(err error) bool
}

type ConsumerMetrics struct {
	ProcessedCount int64 `json:"processed"`
	RetryCount     int64 `json:"retries"`
	DLQCount       int64 `json:"dlq"`
	SuccessCount   int64 `json:"succeeded"`
	FailureCount   int64 `json:"failed"`
}

type consumerCounters struct {
	processed atomic.Int64
	retries   atomic.Int64
	dlq       atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

type MessageMetadata struct {
	RetryCount    int       `json:"retry_count"`
	FirstFailure  time.Time `json:"first_failure"`
	LastFailure   time.Time `json:"last_failure"`
	OriginalTopic string    `json:"original_topic"`
	ErrorMessage  string    `json:"error_message"`
}

// Consumer reads notification events, sends them through the handler with
// retries, and parks anything that still fails on the dead letter topic.
type Consumer struct {
	group    sarama.ConsumerGroup
	producer sarama.SyncProducer
	handler  NotificationHandler
	logger   *logrus.Logger
	topic    string
	counters *consumerCounters
	sleep    func(context.Context, time.Duration) error
}

func NewConsumer(brokers []string, groupID, topic string, handler NotificationHandler, logger *logrus.Logger) (*Consumer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Version = sarama.V2_6_0_0

	group, err := sarama.NewConsumerGroup(brokers, groupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(brokers, producerConfig)
	if err != nil {
		group.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	c := newConsumer(producer, topic, handler, logger)
	c.group = group
	return c, nil
}

func newConsumer(producer sarama.SyncProducer, topic string, handler NotificationHandler, logger *logrus.Logger) *Consumer {
	return &Consumer{
		producer: producer,
		handler:  handler,
		logger:   logger,
		topic:    topic,
		counters: &consumerCounters{},
		sleep:    sleepContext,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.WithError(err).Error("Error consuming from Kafka")
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.producer.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close DLQ producer")
	}
	return c.group.Close()
}

func (c *Consumer) Metrics() ConsumerMetrics {
	return ConsumerMetrics{
		ProcessedCount: c.counters.processed.Load(),
		RetryCount:     c.counters.retries.Load(),
		DLQCount:       c.counters.dlq.Load(),
		SuccessCount:   c.counters.succeeded.Load(),
		FailureCount:   c.counters.failed.Load(),
	}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group session setup")
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.process(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) {
	c.counters.processed.Add(1)

	if err := c.handleWithRetry(ctx, message); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.WithError(err).Error("Failed to process notification after retries")
		c.counters.failed.Add(1)

		if dlqErr := c.sendToDLQ(message, err); dlqErr != nil {
			c.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
		} else {
			c.counters.dlq.Add(1)
		}
		return
	}
	c.counters.succeeded.Add(1)
}

func (c *Consumer) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event NotificationEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("malformed notification event: %w", err)
	}

	entry := c.logger.WithFields(logrus.Fields{
		"notification_id": event.NotificationID,
		"order_id":        event.OrderID,
		"kind":            event.Kind,
	})

	delay := InitialRetryDelay
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			c.counters.retries.Add(1)
			delay *= 2
			if delay > MaxRetryDelay {
				delay = MaxRetryDelay
			}
		}

		err := c.handler.HandleNotification(ctx, event)
		if err == nil {
			entry.Info("Notification delivered")
			return nil
		}
		if !c.handler.IsRetryable(err) {
			return err
		}
		entry.WithError(err).WithField("attempt", attempt+1).Warn("Retryable error delivering notification")
	}

	return fmt.Errorf("exhausted retries for notification %s", event.NotificationID)
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingError error) error {
	now := time.Now().UTC()
	metadata, err := json.Marshal(MessageMetadata{
		RetryCount:    MaxRetries,
		FirstFailure:  now,
		LastFailure:   now,
		OriginalTopic: message.Topic,
		ErrorMessage:  processingError.Error(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	headers := []sarama.RecordHeader{
		{Key: []byte("metadata"), Value: metadata},
		{Key: []byte("original_topic"), Value: []byte(message.Topic)},
		{Key: []byte("original_partition"), Value: []byte(fmt.Sprintf("%d", message.Partition))},
		{Key: []byte("original_offset"), Value: []byte(fmt.Sprintf("%d", message.Offset))},
		{Key: []byte("failure_time"), Value: []byte(now.Format(time.RFC3339))},
	}
	// The replay count must survive the round trip or the monitor's cap never trips.
	for _, h := range message.Headers {
		if string(h.Key) == "replay_count" {
			headers = append(headers, sarama.RecordHeader{Key: h.Key, Value: h.Value})
		}
	}

	dlqTopic := DLQTopic(message.Topic)
	partition, offset, err := c.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   dlqTopic,
		Key:     sarama.ByteEncoder(message.Key),
		Value:   sarama.ByteEncoder(message.Value),
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"dlq_topic":     dlqTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"original_key":  string(message.Key),
		"error":         processingError.Error(),
	}).Warn("Message sent to dead letter queue")
	return nil
}

// MailHandler delivers consumed events through a Mailer.
type MailHandler struct {
	mailer Mailer
}

func NewMailHandler(mailer Mailer) *MailHandler {
	return &MailHandler{mailer: mailer}
}

func (h *MailHandler) HandleNotification(ctx context.Context, event NotificationEvent) error {
	return h.mailer.Send(ctx, Message{To: event.Recipient, Subject: event.Subject, Body: event.Body})
}

// IsRetryable treats network faults and 4xx SMTP replies as transient.
func (h *MailHandler) IsRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
