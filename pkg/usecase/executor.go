// Package usecase реализует идемпотентное выполнение бизнес-обработчиков.
//
// Executor оборачивает обработчик (композиция, не наследование) и
// превращает at-least-once доставку внешнего запроса — повтор клиента
// после таймаута, сетевой дубликат, redelivery — в at-most-once
// наблюдаемый эффект: повторный вызов с тем же ключом идемпотентности
// возвращает сохранённый результат, не вызывая обработчик.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"example.com/business-suite/pkg/idempotency"
	"example.com/business-suite/pkg/logger"
)

// Handler — бизнес-обработчик use case.
// Handle выполняет бизнес-логику в собственной транзакции: доменная
// запись и постановка события в outbox коммитятся атомарно до того,
// как Executor сохранит результат под ключом идемпотентности.
type Handler[I, O any] interface {
	Handle(ctx context.Context, input I) (O, error)
}

// KeyedHandler дополнительно выводит ключ идемпотентности из ввода.
// Обработчик может отказаться от идемпотентности (ok == false), если
// операция естественно свободна от побочных эффектов.
type KeyedHandler[I any] interface {
	IdempotencyKey(ctx context.Context, input I) (key string, ok bool)
}

// Executor — обёртка обработчика с идемпотентностью.
type Executor[I, O any] struct {
	name    string
	handler Handler[I, O]
	keyer   func(ctx context.Context, input I) (string, bool)
	store   idempotency.Store
}

// NewExecutor создаёт Executor для обработчика handler.
// Если handler реализует KeyedHandler — включается идемпотентность.
func NewExecutor[I, O any](name string, handler Handler[I, O], store idempotency.Store) *Executor[I, O] {
	e := &Executor[I, O]{
		name:    name,
		handler: handler,
		store:   store,
	}
	if keyed, ok := any(handler).(KeyedHandler[I]); ok {
		e.keyer = keyed.IdempotencyKey
	}
	return e
}

// Execute выполняет use case с идемпотентным коротким замыканием:
//
//  1. Выводим ключ идемпотентности (обработчик может отказаться).
//  2. При попадании в хранилище — возвращаем сохранённый результат,
//     обработчик не вызывается.
//  3. При промахе — вызываем обработчик. Доменная ошибка пробрасывается
//     без сохранения: неудачная попытка легитимно повторяема с тем же
//     ключом, кэшируются только успехи.
//  4. Успех сохраняем под ключом после коммита транзакции обработчика.
//     Проигравший гонку за ключ перечитывает и возвращает результат
//     победителя, а не ошибку.
func (e *Executor[I, O]) Execute(ctx context.Context, input I) (O, error) {
	var zero O

	var key string
	if e.keyer != nil {
		if k, ok := e.keyer(ctx, input); ok {
			key = k
		}
	}

	if key != "" {
		result, found, err := e.store.GetResult(ctx, key)
		if err != nil {
			return zero, fmt.Errorf("ошибка чтения хранилища идемпотентности: %w", err)
		}
		if found {
			l := logger.FromContext(ctx)
			l.Debug().
				Str("use_case", e.name).
				Str("idempotency_key", key).
				Msg("Повторный запрос: возвращаем сохранённый результат")
			return e.decode(result)
		}
	}

	output, err := e.handler.Handle(ctx, input)
	if err != nil {
		return zero, err
	}

	if key == "" {
		return output, nil
	}

	raw, err := json.Marshal(output)
	if err != nil {
		// Эффект уже закоммичен, результат сериализовать не удалось —
		// возвращать ошибку клиенту уже поздно и неверно
		l := logger.FromContext(ctx)
		l.Error().Err(err).
			Str("use_case", e.name).
			Str("idempotency_key", key).
			Msg("Ошибка сериализации результата use case")
		return output, nil
	}

	if err := e.store.MarkProcessed(ctx, key, raw); err != nil {
		if errors.Is(err, idempotency.ErrDuplicateKey) {
			// Гонка двух запросов с одним ключом: победил другой.
			// Возвращаем его сохранённый результат.
			result, found, getErr := e.store.GetResult(ctx, key)
			if getErr != nil {
				return zero, fmt.Errorf("ошибка чтения результата победителя гонки: %w", getErr)
			}
			if found {
				return e.decode(result)
			}
			// Дубликат без результата — противоречит create-once,
			// отдаём собственный результат
			return output, nil
		}

		// Бизнес-транзакция закоммичена; сбой записи ключа означает лишь
		// возможную безвредную повторную обработку при следующем запросе
		l := logger.FromContext(ctx)
		l.Warn().Err(err).
			Str("use_case", e.name).
			Str("idempotency_key", key).
			Msg("Ошибка записи ключа идемпотентности после коммита")
		return output, nil
	}

	return output, nil
}

// decode десериализует сохранённый результат.
func (e *Executor[I, O]) decode(raw []byte) (O, error) {
	var out O
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("ошибка десериализации сохранённого результата: %w", err)
	}
	return out, nil
}
