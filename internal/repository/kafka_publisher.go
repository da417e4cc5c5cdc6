package repository

import (
	"context"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	pkgkafka "candlestick/pkg/kafka"
)

// KafkaPublisher implements EventPublisher for Kafka. Events are keyed by
// series so a consumer sees each series in order.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

var _ domrepo.EventPublisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) PublishSeriesSynced(ctx context.Context, ev *models.SeriesSynced) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:   seriesKey(ev),
		Value: ev,
		Headers: map[string]string{
			"event_type": "series_synced",
			"event_id":   ev.ID,
		},
	}})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func seriesKey(ev *models.SeriesSynced) []byte {
	key := ev.Symbol
	if ev.Exchange != "" {
		key += "@" + ev.Exchange
	}
	return []byte(key + ":" + ev.Resolution)
}
