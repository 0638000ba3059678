// Package idempotency реализует durable key-value хранилище результатов
// успешно выполненных use case.
//
// Семантика create-once: ключ с записанным результатом никогда не
// перезаписывается — повторные чтения возвращают исходный результат
// независимо от того, что вычислил бы вызов сейчас. Уникальное
// ограничение на ключ — примитив, разрешающий гонку двух конкурентных
// запросов с одним ключом идемпотентности. Записи удаляются только
// внешней retention-политикой.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateKey — ключ уже существует; проигравший в гонке должен
// перечитать и вернуть результат победителя.
var ErrDuplicateKey = errors.New("ключ идемпотентности уже существует")

// Record — сохранённый результат выполнения use case.
type Record struct {
	Key       string    // Уникальный ключ, неизменяем после записи
	Result    []byte    // Сериализованный результат
	CreatedAt time.Time // Время записи
}

// Store определяет операции хранилища идемпотентности.
type Store interface {
	// IsProcessed сообщает, записан ли результат для key.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// GetResult возвращает сохранённый результат и признак его наличия.
	GetResult(ctx context.Context, key string) ([]byte, bool, error)

	// MarkProcessed записывает результат под key.
	// Возвращает ErrDuplicateKey, если ключ уже существует.
	MarkProcessed(ctx context.Context, key string, result []byte) error
}
