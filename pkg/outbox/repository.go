package outbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrEventNotFound — событие outbox не найдено.
var ErrEventNotFound = errors.New("событие outbox не найдено")

// maxLastErrorLen — предел длины текста ошибки в last_error.
const maxLastErrorLen = 1000

// Repository определяет операции над журналом outbox.
// Интерфейс для тестируемости (Dependency Inversion).
type Repository interface {
	// Enqueue вставляет новое событие в статусе PENDING.
	// Участвует в переданной транзакции tx: событие становится видимым
	// тогда и только тогда, когда коммитится бизнес-изменение.
	Enqueue(ctx context.Context, tx *gorm.DB, ev *Event) error

	// ClaimPending атомарно захватывает до limit готовых событий
	// в порядке (available_at, created_at) и переводит их в PROCESSING
	// с арендой lease за воркером workerID. Готовое событие — это
	// PENDING с наступившим available_at либо PROCESSING с истёкшей
	// арендой. Конкурентные воркеры никогда не захватывают одну строку
	// одновременно.
	ClaimPending(ctx context.Context, limit int, workerID string, lease time.Duration) ([]*Event, error)

	// ExtendLease продлевает аренду события, если оно всё ещё PROCESSING
	// и принадлежит workerID. Возвращает false, если владение утрачено.
	ExtendLease(ctx context.Context, id, workerID string, lease time.Duration) (bool, error)

	// MarkSent переводит PROCESSING(workerID) -> SENT и снимает блокировку.
	// Возвращает false, если событие уже не принадлежит воркеру —
	// устаревший успех не должен воскрешать перехваченную строку.
	MarkSent(ctx context.Context, id, workerID string) (bool, error)

	// MarkFailed разрешает неудачную доставку: повтор с экспоненциальным
	// backoff и джиттером, терминальный FAILED при исчерпании попыток
	// или непостоянной ошибке, либо skipped при утрате владения.
	MarkFailed(ctx context.Context, id string, opts FailOptions) (FailResult, error)

	// Stats возвращает состояние очереди на момент now.
	Stats(ctx context.Context, now time.Time) (QueueStats, error)
}

// repository — GORM/MySQL реализация Repository.
type repository struct {
	db *gorm.DB

	// now подменяется в тестах для симуляции истечения аренды.
	now func() time.Time
}

// NewRepository создаёт новый репозиторий outbox.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

// Enqueue вставляет событие в рамках транзакции вызывающей стороны.
func (r *repository) Enqueue(ctx context.Context, tx *gorm.DB, ev *Event) error {
	if tx == nil {
		return errors.New("enqueue вне транзакции запрещён: нарушается атомарность dual write")
	}

	model := modelFromDomain(ev)
	if err := tx.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("ошибка вставки события outbox: %w", err)
	}

	ev.CreatedAt = model.CreatedAt
	ev.UpdatedAt = model.UpdatedAt
	return nil
}

// ClaimPending захватывает пачку готовых событий.
// SELECT ... FOR UPDATE SKIP LOCKED + UPDATE в одной транзакции:
// строки, уже заблокированные конкурентным захватом, пропускаются,
// поэтому два воркера не выбирают одну строку даже до смены статуса.
func (r *repository) ClaimPending(ctx context.Context, limit int, workerID string, lease time.Duration) ([]*Event, error) {
	now := r.now()
	lockedUntil := now.Add(lease)

	var models []EventModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("(status = ? AND available_at <= ?) OR (status = ? AND locked_until < ?)",
				string(StatusPending), now, string(StatusProcessing), now).
			Order("available_at ASC, created_at ASC").
			Limit(limit).
			Find(&models).Error; err != nil {
			return err
		}

		if len(models) == 0 {
			return nil
		}

		ids := make([]string, len(models))
		for i := range models {
			ids[i] = models[i].ID
		}

		if err := tx.Model(&EventModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":       string(StatusProcessing),
				"locked_by":    workerID,
				"locked_until": lockedUntil,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка захвата событий outbox: %w", err)
	}

	events := make([]*Event, len(models))
	for i := range models {
		ev := models[i].toDomain()
		// Отражаем применённый переход в возвращаемых событиях
		ev.Status = StatusProcessing
		ev.LockedBy = &workerID
		until := lockedUntil
		ev.LockedUntil = &until
		ev.UpdatedAt = now
		events[i] = ev
	}
	return events, nil
}

// ExtendLease продлевает аренду при сохранённом владении.
func (r *repository) ExtendLease(ctx context.Context, id, workerID string, lease time.Duration) (bool, error) {
	now := r.now()

	result := r.db.WithContext(ctx).Model(&EventModel{}).
		Where("id = ? AND status = ? AND locked_by = ?", id, string(StatusProcessing), workerID).
		Updates(map[string]any{
			"locked_until": now.Add(lease),
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("ошибка продления аренды: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// MarkSent условно переводит событие в терминальный SENT.
func (r *repository) MarkSent(ctx context.Context, id, workerID string) (bool, error) {
	now := r.now()

	result := r.db.WithContext(ctx).Model(&EventModel{}).
		Where("id = ? AND status = ? AND locked_by = ?", id, string(StatusProcessing), workerID).
		Updates(map[string]any{
			"status":       string(StatusSent),
			"locked_by":    nil,
			"locked_until": nil,
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("ошибка пометки события отправленным: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// MarkFailed разрешает неудачную доставку в собственной транзакции.
// Чтение под FOR UPDATE исключает гонку с конкурентным re-claim.
func (r *repository) MarkFailed(ctx context.Context, id string, opts FailOptions) (FailResult, error) {
	now := r.now()

	var res FailResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m EventModel
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		// Владение утрачено: событие уже разрешено кем-то другим
		// после истечения аренды. Штатный исход, состояние не трогаем.
		if m.Status != string(StatusProcessing) || m.LockedBy == nil || *m.LockedBy != opts.WorkerID {
			res = FailResult{Outcome: OutcomeSkipped}
			return nil
		}

		attempts := m.Attempts + 1
		lastError := truncateError(opts.Err)

		if !opts.Retryable || attempts >= opts.MaxAttempts {
			if err := tx.Model(&EventModel{}).
				Where("id = ?", id).
				Updates(map[string]any{
					"status":       string(StatusFailed),
					"attempts":     attempts,
					"last_error":   lastError,
					"locked_by":    nil,
					"locked_until": nil,
					"updated_at":   now,
				}).Error; err != nil {
				return err
			}
			res = FailResult{Outcome: OutcomeFailed, Attempts: attempts}
			return nil
		}

		delay := backoffDelay(attempts, opts.RetryBaseDelay, opts.RetryMaxDelay)
		if opts.RetryJitter > 0 {
			delay += time.Duration(rand.Int64N(int64(opts.RetryJitter) + 1))
		}
		nextAvailableAt := now.Add(delay)

		if err := tx.Model(&EventModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":       string(StatusPending),
				"attempts":     attempts,
				"available_at": nextAvailableAt,
				"last_error":   lastError,
				"locked_by":    nil,
				"locked_until": nil,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}

		res = FailResult{Outcome: OutcomeRetried, Attempts: attempts, NextAvailableAt: nextAvailableAt}
		return nil
	})
	if err != nil {
		return FailResult{}, fmt.Errorf("ошибка разрешения неудачной доставки: %w", err)
	}

	return res, nil
}

// Stats возвращает количество готовых PENDING событий и возраст старейшего.
func (r *repository) Stats(ctx context.Context, now time.Time) (QueueStats, error) {
	var stats QueueStats

	if err := r.db.WithContext(ctx).Model(&EventModel{}).
		Where("status = ? AND available_at <= ?", string(StatusPending), now).
		Count(&stats.DuePendingCount).Error; err != nil {
		return QueueStats{}, fmt.Errorf("ошибка подсчёта очереди outbox: %w", err)
	}

	if stats.DuePendingCount == 0 {
		return stats, nil
	}

	var oldest time.Time
	row := r.db.WithContext(ctx).Model(&EventModel{}).
		Where("status = ? AND available_at <= ?", string(StatusPending), now).
		Select("MIN(available_at)").
		Row()
	if err := row.Scan(&oldest); err != nil {
		return QueueStats{}, fmt.Errorf("ошибка чтения возраста очереди outbox: %w", err)
	}

	stats.OldestDuePendingAge = now.Sub(oldest)
	return stats, nil
}

// backoffDelay вычисляет базовую задержку экспоненциального backoff:
// min(maxDelay, baseDelay * 2^(attempts-1)). Джиттер добавляется отдельно.
func backoffDelay(attempts int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	// Сдвиг на 32+ бита гарантированно превышает любой разумный maxDelay
	if attempts-1 >= 32 {
		return maxDelay
	}

	delay := baseDelay << (attempts - 1)
	if delay <= 0 || delay > maxDelay {
		return maxDelay
	}
	return delay
}

// truncateError усекает текст ошибки до maxLastErrorLen.
func truncateError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen]
	}
	return &msg
}
