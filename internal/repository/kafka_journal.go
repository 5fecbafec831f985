package repository

import (
	"context"
	"fmt"

	"SmartFlow/internal/domain/models"
	domrepo "SmartFlow/internal/domain/repository"
	pkgkafka "SmartFlow/pkg/kafka"
)

// Publisher is the subset of the Kafka producer the journal needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

var _ Publisher = (*pkgkafka.Producer)(nil)

// KafkaJournal appends decisions and signals to their topics keyed by symbol,
// so each symbol's records stay ordered within a partition.
type KafkaJournal struct {
	producer       Publisher
	decisionsTopic string
	signalsTopic   string
}

// NewKafkaJournal creates a journal.
func NewKafkaJournal(producer Publisher, decisionsTopic, signalsTopic string) *KafkaJournal {
	return &KafkaJournal{producer: producer, decisionsTopic: decisionsTopic, signalsTopic: signalsTopic}
}

func (j *KafkaJournal) PublishDecision(ctx context.Context, d models.Decision) error {
	if err := j.producer.Publish(ctx, j.decisionsTopic, []byte(d.Symbol), d); err != nil {
		return fmt.Errorf("publish decision %s: %w", d.ID, err)
	}
	return nil
}

func (j *KafkaJournal) PublishSignal(ctx context.Context, s models.StructureShiftSignal) error {
	if j.signalsTopic == "" {
		return nil
	}
	if err := j.producer.Publish(ctx, j.signalsTopic, []byte(s.Symbol), s); err != nil {
		return fmt.Errorf("publish signal %s: %w", s.ID, err)
	}
	return nil
}

func (j *KafkaJournal) Close() error {
	if j.producer != nil {
		return j.producer.Close()
	}
	return nil
}

var _ domrepo.Journal = (*KafkaJournal)(nil)
