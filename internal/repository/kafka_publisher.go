package repository

import (
	"context"

	"IgniteX/internal/domain/models"
	pkgkafka "IgniteX/pkg/kafka"
)

// KafkaEventPublisher ships notification events keyed by signal id, so every
// event of one signal lands on the same partition in order.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, e models.Event) error {
	return p.producer.Publish(ctx, p.topic, []byte(e.SignalID), e)
}

// KafkaLogPublisher carries error log digests for the logger collector.
type KafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func NewKafkaLogPublisher(producer *pkgkafka.Producer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: producer}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}
