package repository

import (
	"context"

	"AdaptiveEnsemble/internal/domain/models"
	domrepo "AdaptiveEnsemble/internal/domain/repository"
	pkgkafka "AdaptiveEnsemble/pkg/kafka"
)

// Event header values set on every published message.
const (
	EventHeader      = "event"
	EventTradeIntent = "trade_intent"
	EventTradeClosed = "trade_closed"
)

// KafkaIntentSink publishes intents and closed trades keyed by symbol, so one
// symbol's events stay ordered on a partition.
type KafkaIntentSink struct {
	producer    *pkgkafka.Producer
	intentTopic string
	tradeTopic  string
}

var _ domrepo.IntentSink = (*KafkaIntentSink)(nil)

func NewKafkaIntentSink(producer *pkgkafka.Producer, intentTopic, tradeTopic string) *KafkaIntentSink {
	return &KafkaIntentSink{producer: producer, intentTopic: intentTopic, tradeTopic: tradeTopic}
}

func (p *KafkaIntentSink) PublishIntent(ctx context.Context, intent models.TradeIntent) error {
	return p.producer.PublishBatch(ctx, p.intentTopic, []pkgkafka.Message{{
		Key:     []byte(intent.Symbol),
		Value:   intent,
		Headers: map[string]string{EventHeader: EventTradeIntent},
	}})
}

func (p *KafkaIntentSink) PublishTrade(ctx context.Context, trade models.TradeRecord) error {
	return p.PublishTrades(ctx, []models.TradeRecord{trade})
}

// PublishTrades sends a batch of closed trades in one write.
func (p *KafkaIntentSink) PublishTrades(ctx context.Context, trades []models.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(trades))
	for i, t := range trades {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(t.Symbol),
			Value:   t,
			Headers: map[string]string{EventHeader: EventTradeClosed},
		}
	}
	return p.producer.PublishBatch(ctx, p.tradeTopic, msgs)
}

func (p *KafkaIntentSink) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
