package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// MaxReplays caps how often one notification may be pushed back from the DLQ.
const MaxReplays = 3

// DLQEntry is a dead-lettered notification as operators see it.
type DLQEntry struct {
	Event       NotificationEvent
	Metadata    MessageMetadata
	ReplayCount int
	Partition   int32
	Offset      int64
}

// DLQMonitor logs dead-lettered notifications and can replay them to the
// original topic once the mail problem is fixed.
type DLQMonitor struct {
	consumer sarama.ConsumerGroup
	producer sarama.SyncProducer
	topic    string
	replay   bool
	logger   *logrus.Logger
}

func NewDLQMonitor(brokers []string, groupID, topic string, replay bool, logger *logrus.Logger) (*DLQMonitor, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ consumer: %w", err)
	}

	var producer sarama.SyncProducer
	if replay {
		producer, err = sarama.NewSyncProducer(brokers, config)
		if err != nil {
			consumer.Close()
			return nil, fmt.Errorf("failed to create replay producer: %w", err)
		}
	}

	m := newDLQMonitor(producer, topic, replay, logger)
	m.consumer = consumer
	return m, nil
}

func newDLQMonitor(producer sarama.SyncProducer, topic string, replay bool, logger *logrus.Logger) *DLQMonitor {
	return &DLQMonitor{producer: producer, topic: topic, replay: replay && producer != nil, logger: logger}
}

func (m *DLQMonitor) Start(ctx context.Context) error {
	dlq := DLQTopic(m.topic)
	m.logger.WithFields(logrus.Fields{"topic": dlq, "replay": m.replay}).Info("DLQ monitor started")
	for {
		if err := m.consumer.Consume(ctx, []string{dlq}, m); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			m.logger.WithError(err).Error("Error consuming from DLQ")
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (m *DLQMonitor) Close() error {
	if m.producer != nil {
		if err := m.producer.Close(); err != nil {
			m.logger.WithError(err).Error("Failed to close replay producer")
		}
	}
	return m.consumer.Close()
}

func (m *DLQMonitor) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (m *DLQMonitor) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (m *DLQMonitor) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			m.Handle(message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Handle logs one DLQ message and replays it when replay is enabled and the
// message has not already bounced MaxReplays times.
func (m *DLQMonitor) Handle(message *sarama.ConsumerMessage) DLQEntry {
	entry := ParseDLQMessage(message)

	m.logger.WithFields(logrus.Fields{
		"notification_id": entry.Event.NotificationID,
		"order_id":        entry.Event.OrderID,
		"kind":            entry.Event.Kind,
		"recipient":       entry.Event.Recipient,
		"error":           entry.Metadata.ErrorMessage,
		"retry_count":     entry.Metadata.RetryCount,
		"replay_count":    entry.ReplayCount,
		"partition":       entry.Partition,
		"offset":          entry.Offset,
	}).Warn("Undeliverable notification in DLQ")

	if !m.replay {
		return entry
	}
	if entry.ReplayCount >= MaxReplays {
		m.logger.WithField("notification_id", entry.Event.NotificationID).Error("Notification exceeded replay limit, leaving in DLQ")
		return entry
	}
	if err := m.replayMessage(message, entry.ReplayCount+1); err != nil {
		m.logger.WithError(err).WithField("notification_id", entry.Event.NotificationID).Error("Failed to replay notification")
	}
	return entry
}

func (m *DLQMonitor) replayMessage(message *sarama.ConsumerMessage, replayCount int) error {
	partition, offset, err := m.producer.SendMessage(&sarama.ProducerMessage{
		Topic: m.topic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("replayed_from_dlq"), Value: []byte("true")},
			{Key: []byte("replay_count"), Value: []byte(strconv.Itoa(replayCount))},
			{Key: []byte("replay_time"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to replay message: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"topic":     m.topic,
		"partition": partition,
		"offset":    offset,
		"key":       string(message.Key),
	}).Info("Notification replayed from DLQ")
	return nil
}

// ParseDLQMessage tolerates malformed payloads; whatever decodes is returned.
func ParseDLQMessage(message *sarama.ConsumerMessage) DLQEntry {
	entry := DLQEntry{Partition: message.Partition, Offset: message.Offset}
	json.Unmarshal(message.Value, &entry.Event)

	for _, header := range message.Headers {
		switch string(header.Key) {
		case "metadata":
			json.Unmarshal(header.Value, &entry.Metadata)
		case "replay_count":
			entry.ReplayCount, _ = strconv.Atoi(string(header.Value))
		}
	}
	return entry
}
