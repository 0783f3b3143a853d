package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const DefaultTopic = "storefront.notifications"

type NotificationEvent struct {
	NotificationID string    `json:"notification_id"`
	OrderID        string    `json:"order_id"`
	Kind           string    `json:"kind"`
	Recipient      string    `json:"recipient"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	EventTime      time.Time `json:"event_time"`
}

func EventFor(n models.Notification) NotificationEvent {
	return NotificationEvent{
		NotificationID: n.ID,
		OrderID:        n.OrderID,
		Kind:           n.Kind,
		Recipient:      n.Recipient,
		Subject:        n.Subject,
		Body:           n.Body,
	}
}

// KafkaPublisher is a Dispatcher that publishes to Kafka for cmd/notifier to send.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *logrus.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return NewKafkaPublisherWithProducer(producer, topic, logger), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Dispatch(ctx context.Context, n models.Notification) error {
	event := EventFor(n)
	event.EventTime = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(n.OrderID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("notification_id"), Value: []byte(n.ID)},
			{Key: []byte("kind"), Value: []byte(n.Kind)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("notification_id", n.ID).Error("Failed to publish notification")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":           p.topic,
		"partition":       partition,
		"offset":          offset,
		"order_id":        n.OrderID,
		"notification_id": n.ID,
	}).Info("Notification published to Kafka")

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
