package repository

import (
	"context"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

// EventProducer is the part of pkg/kafka.Producer the publisher needs.
type EventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaSignalPublisher writes signal lifecycle events keyed by symbol so one symbol's
// events stay ordered on a partition.
type KafkaSignalPublisher struct {
	producer EventProducer
	topic    string
}

func NewKafkaSignalPublisher(producer EventProducer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) PublishSignalEvent(ctx context.Context, ev models.SignalEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Signal.Symbol), ev)
}

// MultiPublisher fans an event out to every publisher and returns the first error.
type MultiPublisher []domrepo.SignalPublisher

func (m MultiPublisher) PublishSignalEvent(ctx context.Context, ev models.SignalEvent) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishSignalEvent(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NopPublisher drops events.
type NopPublisher struct{}

func (NopPublisher) PublishSignalEvent(context.Context, models.SignalEvent) error { return nil }

var (
	_ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
	_ domrepo.SignalPublisher = MultiPublisher(nil)
	_ domrepo.SignalPublisher = NopPublisher{}
)
