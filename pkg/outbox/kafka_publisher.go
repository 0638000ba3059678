package outbox

import (
	"context"
	"errors"
	"fmt"

	segkafka "github.com/segmentio/kafka-go"

	"example.com/business-suite/pkg/circuitbreaker"
	"example.com/business-suite/pkg/kafka"
)

// KafkaSender — интерфейс отправки сообщений в Kafka.
// Позволяет замокать kafka.Producer в unit-тестах (Dependency Inversion).
type KafkaSender interface {
	SendMessage(ctx context.Context, msg *kafka.Message) error
}

// KafkaPublisher — Publisher поверх Kafka.
// Доставка защищена Circuit Breaker: при недоступности брокера
// события мгновенно уходят в backoff вместо ожидания таймаутов.
type KafkaPublisher struct {
	sender  KafkaSender
	topic   string
	breaker *circuitbreaker.Breaker
}

// NewKafkaPublisher создаёт Publisher для отправки событий в topic.
// breaker может быть nil — тогда отправка идёт без защиты.
func NewKafkaPublisher(sender KafkaSender, topic string, breaker *circuitbreaker.Breaker) *KafkaPublisher {
	return &KafkaPublisher{
		sender:  sender,
		topic:   topic,
		breaker: breaker,
	}
}

// Publish отправляет событие в Kafka.
// Ключ сообщения — tenant_id: события одного тенанта попадают
// в одну партицию. Отказ брокера — временная ошибка; превышение
// размера сообщения повтором не лечится и помечается Permanent.
func (p *KafkaPublisher) Publish(ctx context.Context, ev *Event) error {
	headers := map[string]string{
		kafka.HeaderEventID:   ev.ID,
		kafka.HeaderEventType: ev.EventType,
		kafka.HeaderTenantID:  ev.TenantID,
	}
	if ev.CorrelationID != nil {
		headers[kafka.HeaderCorrelationID] = *ev.CorrelationID
	}

	msg := &kafka.Message{
		Topic:   p.topic,
		Key:     []byte(ev.TenantID),
		Value:   ev.Payload,
		Headers: headers,
	}

	send := func() error {
		return p.sender.SendMessage(ctx, msg)
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(send)
	} else {
		err = send()
	}
	if err == nil {
		return nil
	}

	var tooLarge segkafka.MessageTooLargeError
	if errors.As(err, &tooLarge) {
		return Permanent(fmt.Errorf("сообщение превышает лимит брокера: %w", err))
	}

	return err
}
