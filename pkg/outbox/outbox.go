// Package outbox реализует Transactional Outbox Pattern для гарантированной
// доставки интеграционных событий.
//
// Событие создаётся в той же транзакции БД, что и бизнес-изменение
// (Producer.Enqueue), поэтому оно видимо тогда и только тогда, когда
// закоммичено само изменение. Отдельные Dispatcher-процессы конкурентно
// захватывают готовые события под time-bounded арендой (lease), доставляют
// их через Publisher и разрешают исход: SENT, повтор с backoff или
// терминальный FAILED. Упавший воркер ничего не освобождает явно —
// его события становятся доступны другим по истечении lease.
package outbox

import (
	"context"
	"errors"
	"time"
)

// Status — статус события в жизненном цикле outbox.
type Status string

const (
	// StatusPending — событие ожидает захвата (available_at <= now).
	StatusPending Status = "PENDING"

	// StatusProcessing — событие захвачено воркером, аренда активна.
	StatusProcessing Status = "PROCESSING"

	// StatusSent — событие доставлено. Терминальный статус.
	StatusSent Status = "SENT"

	// StatusFailed — попытки доставки исчерпаны или отказ постоянный.
	// Терминальный статус, требует внешнего разбора (dead letter).
	StatusFailed Status = "FAILED"
)

// Event — запись журнала outbox.
type Event struct {
	ID            string     // UUID события
	TenantID      string     // Тенант, в контексте которого произошло событие
	EventType     string     // Тип события (loyalty.points_redeemed и т.д.)
	Payload       []byte     // Сериализованное тело события (JSON)
	CorrelationID *string    // Связь с исходным запросом (опционально)
	Status        Status     // Текущий статус
	AvailableAt   time.Time  // Раньше этого времени событие не захватывается
	Attempts      int        // Количество выполненных попыток доставки
	LockedBy      *string    // Идентификатор воркера-владельца
	LockedUntil   *time.Time // Истечение аренды
	LastError     *string    // Усечённый текст последней ошибки доставки
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Outcome — исход MarkFailed.
type Outcome string

const (
	// OutcomeRetried — событие возвращено в PENDING с отложенным available_at.
	OutcomeRetried Outcome = "retried"

	// OutcomeFailed — событие переведено в терминальный FAILED.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped — воркер больше не владеет событием, состояние не изменено.
	// Это штатный исход гонки после истечения аренды, а не ошибка.
	OutcomeSkipped Outcome = "skipped"
)

// FailOptions — параметры разрешения неудачной доставки.
type FailOptions struct {
	WorkerID string // Воркер, сообщающий об ошибке
	Err      error  // Ошибка доставки (пишется в last_error)

	// Retryable — классификация ошибки. false переводит событие
	// в FAILED независимо от количества попыток.
	Retryable bool

	MaxAttempts    int           // Лимит попыток до FAILED
	RetryBaseDelay time.Duration // Базовая задержка backoff
	RetryMaxDelay  time.Duration // Верхняя граница задержки
	RetryJitter    time.Duration // Максимум равномерного джиттера
}

// FailResult — результат MarkFailed.
type FailResult struct {
	Outcome         Outcome
	Attempts        int       // Счётчик попыток после инкремента (кроме skipped)
	NextAvailableAt time.Time // Заполнено при Outcome == retried
}

// QueueStats — состояние очереди для внешнего алертинга.
type QueueStats struct {
	// DuePendingCount — количество готовых к захвату PENDING событий.
	DuePendingCount int64

	// OldestDuePendingAge — возраст самого старого готового события.
	// Ноль, если таких событий нет.
	OldestDuePendingAge time.Duration
}

// Publisher — контракт доставки событий внешнему получателю
// (Kafka, webhook, email-шлюз). Постоянные отказы помечаются
// обёрткой Permanent, всё остальное считается временным.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
}

// permanentError помечает ошибку доставки как неустранимую повтором.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent оборачивает ошибку доставки как постоянную:
// событие уйдёт в FAILED без повторов.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, была ли ошибка помечена как постоянная.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
