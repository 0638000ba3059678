package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// RecordModel — GORM модель для таблицы idempotency_keys.
// varchar(191): максимум для уникального индекса при utf8mb4.
type RecordModel struct {
	Key       string    `gorm:"column:idempotency_key;type:varchar(191);primaryKey"`
	Result    []byte    `gorm:"column:result;type:json;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName возвращает имя таблицы в БД.
func (RecordModel) TableName() string {
	return "idempotency_keys"
}

// gormStore — GORM/MySQL реализация Store.
// Авторитетное хранилище: уникальность ключа обеспечивает primary key.
type gormStore struct {
	db *gorm.DB
}

// NewStore создаёт хранилище идемпотентности поверх MySQL.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// IsProcessed проверяет наличие записанного результата.
func (s *gormStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&RecordModel{}).
		Where("idempotency_key = ?", key).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("ошибка проверки ключа идемпотентности: %w", err)
	}
	return count > 0, nil
}

// GetResult возвращает сохранённый результат.
func (s *gormStore) GetResult(ctx context.Context, key string) ([]byte, bool, error) {
	var model RecordModel
	if err := s.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("ошибка чтения ключа идемпотентности: %w", err)
	}
	return model.Result, true, nil
}

// MarkProcessed записывает результат с семантикой create-once.
func (s *gormStore) MarkProcessed(ctx context.Context, key string, result []byte) error {
	model := &RecordModel{
		Key:    key,
		Result: result,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("ошибка записи ключа идемпотентности: %w", err)
	}
	return nil
}

// isDuplicateKeyError проверяет, является ли ошибка дубликатом ключа.
// MySQL возвращает ошибку с кодом 1062 при попытке вставить дубликат.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "1062")
}
