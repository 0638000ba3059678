package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/business-suite/pkg/logger"
)

// Message — параметры нового события outbox.
type Message struct {
	EventType     string    // Тип события, обязателен
	TenantID      string    // Тенант, обязателен
	Payload       []byte    // Сериализованное тело события, обязательно
	CorrelationID string    // Пусто — берётся из контекста
	AvailableAt   time.Time // Ноль — событие готово немедленно
}

// Producer — тонкий помощник для добавления событий внутри транзакции
// бизнес-обработчика. Собственного состояния не имеет: существует, чтобы
// паттерн «записать состояние + добавить событие» оставался синтаксически
// атомарным и легко проверяемым на корректность.
type Producer struct {
	repo Repository
}

// NewProducer создаёт новый Producer.
func NewProducer(repo Repository) *Producer {
	return &Producer{repo: repo}
}

// Enqueue добавляет событие в журнал outbox в рамках транзакции tx.
// Вызывается только изнутри транзакции, в которой выполняется
// сопутствующее бизнес-изменение.
func (p *Producer) Enqueue(ctx context.Context, tx *gorm.DB, msg Message) (*Event, error) {
	if msg.EventType == "" {
		return nil, errors.New("не указан тип события outbox")
	}
	if msg.TenantID == "" {
		return nil, errors.New("не указан tenant_id события outbox")
	}
	if len(msg.Payload) == 0 {
		return nil, errors.New("пустой payload события outbox")
	}

	correlationID := msg.CorrelationID
	if correlationID == "" {
		correlationID = logger.CorrelationIDFromContext(ctx)
	}

	availableAt := msg.AvailableAt
	if availableAt.IsZero() {
		availableAt = time.Now()
	}

	ev := &Event{
		ID:          uuid.New().String(),
		TenantID:    msg.TenantID,
		EventType:   msg.EventType,
		Payload:     msg.Payload,
		Status:      StatusPending,
		AvailableAt: availableAt,
		Attempts:    0,
	}
	if correlationID != "" {
		ev.CorrelationID = &correlationID
	}

	if err := p.repo.Enqueue(ctx, tx, ev); err != nil {
		return nil, err
	}

	l := logger.FromContext(ctx)
	l.Debug().
		Str("event_id", ev.ID).
		Str("event_type", ev.EventType).
		Str("tenant_id", ev.TenantID).
		Msg("Событие добавлено в outbox")

	return ev, nil
}
