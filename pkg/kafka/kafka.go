// Package kafka предоставляет обёртку над kafka-go для отправки
// интеграционных событий. Producer используется Outbox Dispatcher —
// сервисы напрямую в Kafka не пишут, только через outbox.
package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// Ключи для headers сообщений Kafka.
const (
	// HeaderEventID — идентификатор события outbox.
	HeaderEventID = "event_id"

	// HeaderEventType — тип события (loyalty.points_redeemed и т.д.).
	HeaderEventType = "event_type"

	// HeaderTenantID — идентификатор тенанта.
	HeaderTenantID = "tenant_id"

	// HeaderCorrelationID — идентификатор корреляции с исходным запросом.
	HeaderCorrelationID = "correlation_id"

	// HeaderTimestamp — временная метка отправки сообщения.
	HeaderTimestamp = "timestamp"
)

// Config содержит настройки подключения к Kafka.
type Config struct {
	// Brokers — список адресов брокеров Kafka.
	Brokers []string
}

// Message представляет сообщение Kafka с метаданными.
type Message struct {
	// Topic — топик сообщения.
	Topic string

	// Key — ключ сообщения для партиционирования.
	Key []byte

	// Value — тело сообщения (payload).
	Value []byte

	// Headers — заголовки сообщения.
	Headers map[string]string

	// Time — временная метка сообщения.
	Time time.Time
}

// toKafkaMessage конвертирует Message в kafka.Message.
func (m *Message) toKafkaMessage() kafka.Message {
	headers := make([]kafka.Header, 0, len(m.Headers))
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	return kafka.Message{
		Topic:   m.Topic,
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
		Time:    m.Time,
	}
}
